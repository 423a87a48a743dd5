// Package payment defines the narrow contract the order flow has with the
// card payment provider. The provider is opaque beyond session creation and
// verified retrieval.
package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

// Gateway session payment states as reported by the provider.
const (
	SessionPaid              = "paid"
	SessionUnpaid            = "unpaid"
	SessionNoPaymentRequired = "no_payment_required"
)

// SessionOptions carries everything needed to open a checkout session. The
// idempotency key is forwarded to the provider so gateway-level retries do
// not duplicate charges.
type SessionOptions struct {
	Amount         decimal.Decimal
	OrderID        string
	TenantID       string
	IdempotencyKey string
}

// Session is a freshly created checkout session.
type Session struct {
	ID            string
	PaymentURL    string
	PaymentStatus string
}

// VerifiedSession is a session retrieved directly from the provider. Webhook
// payloads are never trusted; the order id comes from the verified session's
// metadata.
type VerifiedSession struct {
	ID            string
	PaymentStatus string
	OrderID       string
}

// Gateway creates and retrieves checkout sessions.
type Gateway interface {
	CreateSession(ctx context.Context, opts SessionOptions) (*Session, error)
	GetSession(ctx context.Context, id string) (*VerifiedSession, error)
}
