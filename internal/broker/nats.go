// Package broker integrates with NATS JetStream: at-least-once publishing of
// domain events and durable consumption of upstream catalog streams.
package broker

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

// MessageHandler processes one consumed message. Returning an error causes a
// negative acknowledgement and redelivery; returning nil acknowledges.
type MessageHandler func(ctx context.Context, subject string, data []byte) error

// NATS wraps a JetStream-enabled NATS connection.
type NATS struct {
	conn *nats.Conn
	js   jetstream.JetStream
	lg   *zap.Logger
}

// Connect dials the NATS server and creates a JetStream context.
func Connect(url, clientName string, lg *zap.Logger) (*NATS, error) {
	conn, err := nats.Connect(url,
		nats.Name(clientName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, errors.Wrap(err, "connect to NATS")
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "create JetStream context")
	}

	return &NATS{conn: conn, js: js, lg: lg}, nil
}

// EnsureStream creates or updates a stream covering the given subjects.
func (b *NATS) EnsureStream(ctx context.Context, name string, subjects []string, maxAge time.Duration) error {
	_, err := b.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     name,
		Subjects: subjects,
		MaxAge:   maxAge,
	})
	if err != nil {
		return errors.Wrapf(err, "create/update stream %s", name)
	}
	return nil
}

// Publish delivers msg to topic with at-least-once semantics. The partition
// key is appended as a subject token, so messages sharing a key share a
// subject and keep their relative order; there is no ordering across keys.
func (b *NATS) Publish(ctx context.Context, topic, key string, msg []byte) error {
	subject := topic
	if key != "" {
		subject = topic + "." + sanitizeToken(key)
	}
	if _, err := b.js.Publish(ctx, subject, msg); err != nil {
		return errors.Wrapf(err, "publish to %s", subject)
	}
	return nil
}

// Consume binds a durable consumer to the stream and dispatches messages to
// the handler until ctx is cancelled. Handler errors are logged and nak'ed
// for redelivery; they never halt consumption of subsequent messages.
func (b *NATS) Consume(ctx context.Context, stream, durable, filterSubject string, handler MessageHandler) error {
	s, err := b.js.Stream(ctx, stream)
	if err != nil {
		return errors.Wrapf(err, "bind stream %s", stream)
	}

	consumer, err := s.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          durable,
		Durable:       durable,
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: filterSubject,
	})
	if err != nil {
		return errors.Wrapf(err, "create/update consumer %s", durable)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		if err := handler(ctx, msg.Subject(), msg.Data()); err != nil {
			b.lg.Warn("Message handler failed, scheduling redelivery",
				zap.String("subject", msg.Subject()),
				zap.Error(err),
			)
			if err := msg.Nak(); err != nil {
				b.lg.Error("Nak failed", zap.String("subject", msg.Subject()), zap.Error(err))
			}
			return
		}
		if err := msg.Ack(); err != nil {
			b.lg.Error("Ack failed", zap.String("subject", msg.Subject()), zap.Error(err))
		}
	})
	if err != nil {
		return errors.Wrapf(err, "consume %s", filterSubject)
	}

	go func() {
		<-ctx.Done()
		cc.Stop()
	}()

	return nil
}

// Ping reports whether the connection is currently established. Used by the
// readiness check.
func (b *NATS) Ping(_ context.Context) error {
	if !b.conn.IsConnected() {
		return errors.New("not connected")
	}
	return nil
}

// Close drains and closes the underlying connection.
func (b *NATS) Close() {
	if err := b.conn.Drain(); err != nil {
		b.lg.Warn("NATS drain failed", zap.Error(err))
		b.conn.Close()
	}
}

// sanitizeToken makes key safe to use as a single NATS subject token.
func sanitizeToken(key string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t':
			return '-'
		}
		return r
	}, key)
}
