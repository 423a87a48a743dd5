// Package gateway implements the payment gateway contract on Stripe Checkout.
package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/xenking/pizza-orders/internal/domain/payment"
)

// minorUnits converts a decimal amount to the gateway's integer minor units.
var minorUnits = decimal.NewFromInt(100)

// checkoutSessions is the slice of the Stripe client the gateway needs.
type checkoutSessions interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// Config configures the Stripe gateway.
type Config struct {
	SecretKey  string
	SuccessURL string
	CancelURL  string
	Currency   string
}

var _ payment.Gateway = (*Stripe)(nil)

// Stripe implements payment.Gateway using Stripe Checkout sessions.
type Stripe struct {
	sessions   checkoutSessions
	successURL string
	cancelURL  string
	currency   string
}

// NewStripe creates a Stripe gateway from the config.
func NewStripe(cfg Config) *Stripe {
	sc := client.New(cfg.SecretKey, nil)
	return &Stripe{
		sessions:   sc.CheckoutSessions,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		currency:   strings.ToLower(cfg.Currency),
	}
}

// CreateSession opens a checkout session for the order's final amount. The
// caller's idempotency key is forwarded so a retried request reuses the
// provider-side session instead of opening a second one. The order id rides
// in the session metadata and comes back on verification.
func (g *Stripe) CreateSession(ctx context.Context, opts payment.SessionOptions) (*payment.Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(g.currency),
				UnitAmount: stripe.Int64(opts.Amount.Mul(minorUnits).IntPart()),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Online order"),
				},
			},
		}},
		SuccessURL: stripe.String(callbackURL(g.successURL, opts)),
		CancelURL:  stripe.String(callbackURL(g.cancelURL, opts)),
	}
	params.Context = ctx
	params.Metadata = map[string]string{
		"orderId":  opts.OrderID,
		"tenantId": opts.TenantID,
	}
	if opts.IdempotencyKey != "" {
		params.SetIdempotencyKey(opts.IdempotencyKey)
	}

	sess, err := g.sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("creating checkout session: %w", err)
	}

	return &payment.Session{
		ID:            sess.ID,
		PaymentURL:    sess.URL,
		PaymentStatus: string(sess.PaymentStatus),
	}, nil
}

// GetSession retrieves the session directly from Stripe. The returned order
// id comes from the verified session's metadata, never from a webhook body.
func (g *Stripe) GetSession(ctx context.Context, id string) (*payment.VerifiedSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	sess, err := g.sessions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("retrieving checkout session %q: %w", id, err)
	}

	return &payment.VerifiedSession{
		ID:            sess.ID,
		PaymentStatus: string(sess.PaymentStatus),
		OrderID:       sess.Metadata["orderId"],
	}, nil
}

func callbackURL(base string, opts payment.SessionOptions) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%sorderId=%s&restaurantId=%s", base, sep, opts.OrderID, opts.TenantID)
}
