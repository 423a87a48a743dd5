package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/pizza-orders/internal/domain/coupon"
)

// Sized for a catalogue-wide coupon inventory with a low false-positive
// rate; misses cost one extra query, never a wrong answer.
const (
	couponFilterCapacity = 1_000_000
	couponFilterFPR      = 0.001
)

const (
	findActiveCouponSQL = `SELECT id, title, code, discount, tenant_id, valid_till
		FROM coupons
		WHERE UPPER(code) = UPPER($1) AND tenant_id = $2 AND valid_till >= $3`

	insertCouponSQL = `INSERT INTO coupons (id, title, code, discount, tenant_id, valid_till)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (code, tenant_id) DO UPDATE
		SET title = EXCLUDED.title,
		    discount = EXCLUDED.discount,
		    valid_till = EXCLUDED.valid_till`

	listCouponKeysSQL = `SELECT code, tenant_id FROM coupons`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL, with an
// in-memory bloom filter short-circuiting lookups for codes that were never
// issued. The filter only ever accumulates keys; expiry is still decided by
// the query.
type CouponRepository struct {
	pool *pgxpool.Pool

	mu     sync.RWMutex
	filter *bloom.BloomFilter
	warmed bool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
// The filter passes everything through until WarmFilter runs.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{
		pool:   pool,
		filter: bloom.NewWithEstimates(couponFilterCapacity, couponFilterFPR),
	}
}

// WarmFilter loads all known (code, tenant) pairs into the bloom filter.
func (r *CouponRepository) WarmFilter(ctx context.Context) error {
	rows, err := r.pool.Query(ctx, listCouponKeysSQL)
	if err != nil {
		return fmt.Errorf("listing coupon keys: %w", err)
	}
	defer rows.Close()

	r.mu.Lock()
	defer r.mu.Unlock()

	for rows.Next() {
		var code, tenantID string
		if err := rows.Scan(&code, &tenantID); err != nil {
			return fmt.Errorf("scanning coupon key: %w", err)
		}
		r.filter.AddString(filterKey(code, tenantID))
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("listing coupon keys: %w", err)
	}

	r.warmed = true
	return nil
}

// FindActive returns the coupon matching (code, tenantID) that is still valid
// at now, or coupon.ErrNotFound.
func (r *CouponRepository) FindActive(ctx context.Context, code, tenantID string, now time.Time) (*coupon.Coupon, error) {
	if r.definitelyUnknown(code, tenantID) {
		return nil, coupon.ErrNotFound
	}

	rows, err := r.pool.Query(ctx, findActiveCouponSQL, code, tenantID, now)
	if err != nil {
		return nil, fmt.Errorf("finding coupon %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon %q: %w", code, err)
	}
	return &c, nil
}

// Create upserts a coupon and registers it in the bloom filter.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	_, err := r.pool.Exec(ctx, insertCouponSQL,
		c.ID, c.Title, c.Code, c.Discount, c.TenantID, c.ValidTill,
	)
	if err != nil {
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}

	r.mu.Lock()
	r.filter.AddString(filterKey(c.Code, c.TenantID))
	r.mu.Unlock()

	return nil
}

// definitelyUnknown reports whether the warmed filter rules the key out.
func (r *CouponRepository) definitelyUnknown(code, tenantID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.warmed && !r.filter.TestString(filterKey(code, tenantID))
}

func filterKey(code, tenantID string) string {
	return strings.ToUpper(code) + ":" + tenantID
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var c coupon.Coupon
	err := row.Scan(&c.ID, &c.Title, &c.Code, &c.Discount, &c.TenantID, &c.ValidTill)
	return c, err
}
