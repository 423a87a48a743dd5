// Package order implements the order creation orchestrator: idempotent,
// transactionally consistent order writes composed with pricing, the payment
// gateway, and the event publisher.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/pizza-orders/internal/domain/cart"
	"github.com/xenking/pizza-orders/internal/domain/customer"
)

// PaymentMode selects how the customer pays.
type PaymentMode string

const (
	PaymentModeCash PaymentMode = "cod"
	PaymentModeCard PaymentMode = "card"
)

// Status is the fulfilment state of an order. Progression is linear by
// convention (received through delivered); it is not enforced on writes.
type Status string

const (
	StatusReceived       Status = "received"
	StatusConfirmed      Status = "confirmed"
	StatusPreparing      Status = "preparing"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
)

// ValidStatus reports whether s is a known fulfilment state.
func ValidStatus(s Status) bool {
	switch s {
	case StatusReceived, StatusConfirmed, StatusPreparing, StatusOutForDelivery, StatusDelivered:
		return true
	}
	return false
}

// PaymentStatus is the payment state of an order, owned by the webhook
// reconciliation flow after creation.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// Order is a persisted customer order. The embedded cart is the priced
// snapshot taken at creation time; later cache changes never alter it.
type Order struct {
	ID              string           `json:"id"`
	Cart            []cart.Item      `json:"cart"`
	Address         customer.Address `json:"address"`
	Comment         string           `json:"comment,omitempty"`
	CustomerID      string           `json:"customerId"`
	TenantID        string           `json:"tenantId"`
	Total           decimal.Decimal  `json:"total"`
	Discount        decimal.Decimal  `json:"discount"`
	Taxes           decimal.Decimal  `json:"taxes"`
	DeliveryCharges decimal.Decimal  `json:"deliveryCharges"`
	PaymentMode     PaymentMode      `json:"paymentMode"`
	Status          Status           `json:"orderStatus"`
	PaymentStatus   PaymentStatus    `json:"paymentStatus"`
	PaymentID       string           `json:"paymentId,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// Sentinel errors.
var (
	// ErrNotFound is returned when no order exists for the given id.
	ErrNotFound = errors.New("order not found")
	// ErrDuplicateIdempotencyKey is returned by Repository.Create when the
	// idempotency key is already recorded. It arbitrates concurrent duplicate
	// submissions and is resolved internally, never surfaced to callers.
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already recorded")
	// ErrNoIdempotencyRecord is returned by IdempotencyStore.Lookup when the
	// key is unknown or its retention window has passed.
	ErrNoIdempotencyRecord = errors.New("no idempotency record")
)

// PricingRejectedError wraps a pricing failure: the cart references catalog
// data that is missing or invalid. A client error; the cart must be
// resubmitted after the catalog syncs.
type PricingRejectedError struct {
	Err error
}

func (e *PricingRejectedError) Error() string { return fmt.Sprintf("cart rejected: %v", e.Err) }
func (e *PricingRejectedError) Unwrap() error { return e.Err }

// PaymentSessionError indicates the order was recorded but the payment
// session could not be created. Surfaced distinctly so the client knows the
// order exists and only the payment step failed.
type PaymentSessionError struct {
	OrderID string
	Err     error
}

func (e *PaymentSessionError) Error() string {
	return fmt.Sprintf("payment session for order %s: %v", e.OrderID, e.Err)
}
func (e *PaymentSessionError) Unwrap() error { return e.Err }

// UnauthorizedError indicates a role/tenant mismatch on a staff operation.
type UnauthorizedError struct {
	Role   string
	Tenant string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("role %q (tenant %q) may not perform this operation", e.Role, e.Tenant)
}

// Repository persists orders. Create must write the order and its
// idempotency record in one atomic unit: both rows exist afterwards or
// neither does.
type Repository interface {
	// Create inserts the order together with an idempotency record storing
	// the order as its result. Returns ErrDuplicateIdempotencyKey when the
	// key is already recorded (the concurrent-duplicate race loser).
	Create(ctx context.Context, o *Order, idempotencyKey string) error
	GetByID(ctx context.Context, id string) (*Order, error)
	ListByCustomer(ctx context.Context, customerID, tenantID string) ([]Order, error)
	// UpdateStatus overwrites the fulfilment status and returns the updated
	// order.
	UpdateStatus(ctx context.Context, id string, status Status) (*Order, error)
	// UpdatePaymentStatus overwrites the payment status (and payment id, when
	// non-empty) and returns the updated order. A pure overwrite keyed by
	// order id, so duplicate webhook deliveries are harmless.
	UpdatePaymentStatus(ctx context.Context, id string, status PaymentStatus, paymentID string) (*Order, error)
}

// IdempotencyStore maps client-supplied idempotency keys to the order
// produced on first success, within a bounded retention window.
type IdempotencyStore interface {
	// Lookup returns the stored order for key, or ErrNoIdempotencyRecord.
	Lookup(ctx context.Context, key string) (*Order, error)
	// DeleteExpired removes records created before the cutoff, freeing their
	// keys for reuse.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
