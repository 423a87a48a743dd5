// Package coupon defines tenant-scoped percentage coupons. Coupon management
// is owned by the admin surface; the order flow only reads a single coupon by
// (code, tenant) filtered on non-expiry.
package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when no matching non-expired coupon exists.
var ErrNotFound = errors.New("coupon not found")

// Coupon is a tenant-scoped percentage discount valid until a deadline.
type Coupon struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Code      string          `json:"code"`
	Discount  decimal.Decimal `json:"discount"`
	TenantID  string          `json:"tenantId"`
	ValidTill time.Time       `json:"validTill"`
}

// Expired reports whether the coupon is past its validity deadline at now.
func (c *Coupon) Expired(now time.Time) bool {
	return c.ValidTill.Before(now)
}

// Repository provides coupon lookups for the order flow.
type Repository interface {
	// FindActive returns the coupon matching (code, tenantID) that is still
	// valid at now, or ErrNotFound.
	FindActive(ctx context.Context, code, tenantID string, now time.Time) (*Coupon, error)
}
