package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/pizza-orders/internal/domain/auth"
	"github.com/xenking/pizza-orders/internal/domain/cart"
	"github.com/xenking/pizza-orders/internal/domain/catalog"
	"github.com/xenking/pizza-orders/internal/domain/coupon"
	"github.com/xenking/pizza-orders/internal/domain/customer"
	"github.com/xenking/pizza-orders/internal/domain/payment"
	"github.com/xenking/pizza-orders/internal/domain/pricing"
	"github.com/xenking/pizza-orders/internal/events"
)

// Validation sentinels.
var (
	ErrEmptyCart          = errors.New("cart is empty")
	ErrInvalidStatus      = errors.New("invalid order status")
	ErrMissingIdempotency = errors.New("idempotency key required")
)

// CreateRequest is the input for creating an order.
type CreateRequest struct {
	Cart           []cart.Item
	Address        customer.Address
	Comment        string
	CustomerID     string
	TenantID       string
	PaymentMode    PaymentMode
	CouponCode     string
	IdempotencyKey string
}

// CreateResult is the outcome of a (possibly replayed) order creation.
// PaymentURL is empty for cash orders.
type CreateResult struct {
	Order      *Order
	PaymentURL string
}

// Service composes the pricing engine, idempotency store, order store,
// payment gateway, and event publisher into the order creation protocol.
type Service struct {
	prices      catalog.Snapshot
	coupons     coupon.Repository
	customers   customer.Repository
	orders      Repository
	idempotency IdempotencyStore
	gateway     payment.Gateway
	publisher   events.Publisher
	now         func() time.Time
}

// NewService creates the order Service with its collaborators.
func NewService(
	prices catalog.Snapshot,
	coupons coupon.Repository,
	customers customer.Repository,
	orders Repository,
	idempotency IdempotencyStore,
	gateway payment.Gateway,
	publisher events.Publisher,
) *Service {
	return &Service{
		prices:      prices,
		coupons:     coupons,
		customers:   customers,
		orders:      orders,
		idempotency: idempotency,
		gateway:     gateway,
		publisher:   publisher,
		now:         time.Now,
	}
}

// orderEventData is the payload of order lifecycle events: the order snapshot
// plus the resolved customer identity when available.
type orderEventData struct {
	*Order
	Customer *customer.Customer `json:"customer,omitempty"`
}

// Create prices the cart, creates the order exactly once for the request's
// idempotency key, opens a card payment session when requested, and
// announces the outcome. Retried requests with the same key observe the
// identical order without being re-charged or re-discounted.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if req.IdempotencyKey == "" {
		return nil, ErrMissingIdempotency
	}
	if len(req.Cart) == 0 {
		return nil, ErrEmptyCart
	}

	// Pricing runs against the current cache snapshot regardless of
	// idempotency status; only the write is guarded.
	total, err := pricing.PriceCart(ctx, req.Cart, s.prices)
	if err != nil {
		var missing *pricing.MissingCacheEntryError
		var invalid *pricing.InvalidOptionError
		if errors.As(err, &missing) || errors.As(err, &invalid) {
			return nil, &PricingRejectedError{Err: err}
		}
		return nil, errors.Wrap(err, "price cart")
	}

	percent, err := s.discountPercent(ctx, req.CouponCode, req.TenantID)
	if err != nil {
		return nil, errors.Wrap(err, "resolve discount")
	}
	bill := pricing.ComputeBill(total, percent)

	o, err := s.findOrCreate(ctx, req, bill)
	if err != nil {
		return nil, err
	}

	result := &CreateResult{Order: o}

	if o.PaymentMode == PaymentModeCard {
		sess, err := s.gateway.CreateSession(ctx, payment.SessionOptions{
			Amount:         o.Total,
			OrderID:        o.ID,
			TenantID:       o.TenantID,
			IdempotencyKey: req.IdempotencyKey,
		})
		if err != nil {
			// The order is committed; only the session failed. Report it
			// distinctly so the client retries with the same key.
			return nil, &PaymentSessionError{OrderID: o.ID, Err: err}
		}
		o.PaymentID = sess.ID
		result.PaymentURL = sess.PaymentURL
	}

	s.publish(ctx, events.TypeOrderCreated, o)

	return result, nil
}

// findOrCreate returns the stored order for the idempotency key, or creates
// it atomically together with the idempotency record. A concurrent duplicate
// that loses the unique-key race falls back to reading the winner's record.
func (s *Service) findOrCreate(ctx context.Context, req CreateRequest, bill pricing.Bill) (*Order, error) {
	stored, err := s.idempotency.Lookup(ctx, req.IdempotencyKey)
	switch {
	case err == nil:
		return stored, nil
	case !errors.Is(err, ErrNoIdempotencyRecord):
		return nil, errors.Wrap(err, "idempotency lookup")
	}

	o := &Order{
		ID:              uuid.New().String(),
		Cart:            req.Cart,
		Address:         req.Address,
		Comment:         req.Comment,
		CustomerID:      req.CustomerID,
		TenantID:        req.TenantID,
		Total:           bill.FinalAmount,
		Discount:        bill.Discount,
		Taxes:           bill.Taxes,
		DeliveryCharges: bill.DeliveryCharges,
		PaymentMode:     req.PaymentMode,
		Status:          StatusReceived,
		PaymentStatus:   PaymentStatusPending,
		CreatedAt:       s.now().UTC(),
	}

	err = s.orders.Create(ctx, o, req.IdempotencyKey)
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, ErrDuplicateIdempotencyKey) {
		return nil, errors.Wrap(err, "create order")
	}

	// Race loser: another request with the same key committed first. Its
	// record is now present; replay it instead of erroring the caller.
	stored, err = s.idempotency.Lookup(ctx, req.IdempotencyKey)
	if err != nil {
		return nil, errors.Wrap(err, "replay idempotency record")
	}
	return stored, nil
}

// discountPercent resolves the coupon's discount percentage, or zero when no
// code was supplied or no matching non-expired coupon exists.
func (s *Service) discountPercent(ctx context.Context, code, tenantID string) (decimal.Decimal, error) {
	if code == "" || tenantID == "" {
		return decimal.Zero, nil
	}
	c, err := s.coupons.FindActive(ctx, code, tenantID, s.now())
	if err != nil {
		if errors.Is(err, coupon.ErrNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return c.Discount, nil
}

// UpdateStatus overwrites an order's fulfilment status on behalf of a staff
// actor. Admins may update any order; managers only orders of their own
// tenant. Progression is not validated as monotonic.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, status Status, actor auth.Actor) (*Order, error) {
	if !ValidStatus(status) {
		return nil, ErrInvalidStatus
	}

	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	switch actor.Role {
	case auth.RoleAdmin:
	case auth.RoleManager:
		if actor.TenantID != o.TenantID {
			return nil, &UnauthorizedError{Role: actor.Role, Tenant: actor.TenantID}
		}
	default:
		return nil, &UnauthorizedError{Role: actor.Role, Tenant: actor.TenantID}
	}

	updated, err := s.orders.UpdateStatus(ctx, orderID, status)
	if err != nil {
		return nil, errors.Wrap(err, "update status")
	}

	s.publish(ctx, events.TypeOrderUpdated, updated)

	return updated, nil
}

// CompletePayment reconciles a gateway "session completed" notification. The
// session is re-fetched from the gateway rather than trusting the webhook
// payload; the payment status overwrite is idempotent under duplicate
// deliveries.
func (s *Service) CompletePayment(ctx context.Context, sessionID string) (*Order, error) {
	sess, err := s.gateway.GetSession(ctx, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "verify session")
	}

	status := PaymentStatusFailed
	if sess.PaymentStatus == payment.SessionPaid {
		status = PaymentStatusPaid
	}

	updated, err := s.orders.UpdatePaymentStatus(ctx, sess.OrderID, status, sess.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "update payment status for order %s", sess.OrderID)
	}

	s.publish(ctx, events.TypePaymentStatusUpdate, updated)

	return updated, nil
}

// Get returns a single order by id.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.orders.GetByID(ctx, id)
}

// ListByCustomer returns a customer's orders within a tenant.
func (s *Service) ListByCustomer(ctx context.Context, customerID, tenantID string) ([]Order, error) {
	return s.orders.ListByCustomer(ctx, customerID, tenantID)
}

// publish emits an order lifecycle event keyed by order id, enriched with the
// resolved customer. Publish failures are logged, never rolled back: the
// committed order stands and downstream consumers tolerate gaps.
func (s *Service) publish(ctx context.Context, t events.Type, o *Order) {
	lg := zctx.From(ctx)

	data := orderEventData{Order: o}
	if c, err := s.customers.GetByID(ctx, o.CustomerID); err == nil {
		data.Customer = c
	} else if !errors.Is(err, customer.ErrNotFound) {
		lg.Warn("Customer lookup for event failed",
			zap.String("order_id", o.ID),
			zap.String("customer_id", o.CustomerID),
			zap.Error(err),
		)
	}

	msg, err := events.Marshal(t, data)
	if err != nil {
		lg.Error("Marshal order event", zap.String("order_id", o.ID), zap.Error(err))
		return
	}

	if err := s.publisher.Publish(ctx, events.TopicOrderEvents, o.ID, msg); err != nil {
		lg.Error("Publish order event",
			zap.String("event_type", string(t)),
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
		return
	}

	lg.Info("Order event published",
		zap.String("event_type", string(t)),
		zap.String("order_id", o.ID),
	)
}
