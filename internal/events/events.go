// Package events defines the domain event contract shared with downstream
// consumers. Delivery is at-least-once with no ordering guarantee across
// partition keys; consumers must be idempotent.
package events

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
)

// Topics.
const (
	// TopicOrderEvents receives order lifecycle events, keyed by order id so
	// all events for one order share a partition.
	TopicOrderEvents = "orders.events"
)

// Type enumerates the order lifecycle event kinds.
type Type string

const (
	TypeOrderCreated        Type = "order_created"
	TypeOrderUpdated        Type = "order_updated"
	TypePaymentStatusUpdate Type = "payment_status_update"
)

// Envelope is the wire format every published event uses.
type Envelope struct {
	EventType Type            `json:"event_type"`
	Data      json.RawMessage `json:"data"`
}

// Marshal wraps data in an Envelope and serializes it.
func Marshal(t Type, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrap(err, "marshal event data")
	}
	return json.Marshal(Envelope{EventType: t, Data: raw})
}

// Publisher delivers a message to a topic. Key selects the partition:
// messages with the same key are delivered in order, messages with different
// keys are not. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, msg []byte) error
}
