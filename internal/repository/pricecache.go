package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/pizza-orders/internal/domain/catalog"
)

// Cache entry kinds sharing the price_cache table.
const (
	kindProduct = "product"
	kindTopping = "topping"
)

const (
	getProductConfigSQL = `SELECT price_configuration FROM price_cache
		WHERE kind = 'product' AND item_id = $1`

	getToppingPriceSQL = `SELECT price FROM price_cache
		WHERE kind = 'topping' AND item_id = $1`

	upsertCacheEntrySQL = `INSERT INTO price_cache (kind, item_id, price_configuration, price, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (kind, item_id) DO UPDATE
		SET price_configuration = EXCLUDED.price_configuration,
		    price = EXCLUDED.price,
		    updated_at = now()`
)

var _ catalog.Store = (*PriceCacheRepository)(nil)

// PriceCacheRepository implements catalog.Store backed by PostgreSQL. Product
// configurations are stored as JSONB; topping prices as NUMERIC.
type PriceCacheRepository struct {
	pool *pgxpool.Pool
}

// NewPriceCacheRepository returns a PriceCacheRepository that uses the given pool.
func NewPriceCacheRepository(pool *pgxpool.Pool) *PriceCacheRepository {
	return &PriceCacheRepository{pool: pool}
}

// Product returns the cached pricing configuration for a product, or
// catalog.ErrNotCached.
func (r *PriceCacheRepository) Product(ctx context.Context, id string) (*catalog.ProductPricing, error) {
	var cfgJSON []byte
	err := r.pool.QueryRow(ctx, getProductConfigSQL, id).Scan(&cfgJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotCached
		}
		return nil, fmt.Errorf("getting cached product %q: %w", id, err)
	}

	p := catalog.ProductPricing{ProductID: id}
	if err := json.Unmarshal(cfgJSON, &p.PriceConfiguration); err != nil {
		return nil, fmt.Errorf("decoding price configuration for product %q: %w", id, err)
	}
	return &p, nil
}

// Topping returns the cached flat price for a topping, or catalog.ErrNotCached.
func (r *PriceCacheRepository) Topping(ctx context.Context, id string) (*catalog.ToppingPricing, error) {
	t := catalog.ToppingPricing{ToppingID: id}

	err := r.pool.QueryRow(ctx, getToppingPriceSQL, id).Scan(&t.Price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotCached
		}
		return nil, fmt.Errorf("getting cached topping %q: %w", id, err)
	}
	return &t, nil
}

// UpsertProduct replaces the cached configuration for the product.
func (r *PriceCacheRepository) UpsertProduct(ctx context.Context, p catalog.ProductPricing) error {
	cfgJSON, err := json.Marshal(p.PriceConfiguration)
	if err != nil {
		return fmt.Errorf("marshaling price configuration for product %q: %w", p.ProductID, err)
	}

	_, err = r.pool.Exec(ctx, upsertCacheEntrySQL, kindProduct, p.ProductID, cfgJSON, nil)
	if err != nil {
		return fmt.Errorf("upserting cached product %q: %w", p.ProductID, err)
	}
	return nil
}

// UpsertTopping replaces the cached price for the topping.
func (r *PriceCacheRepository) UpsertTopping(ctx context.Context, t catalog.ToppingPricing) error {
	_, err := r.pool.Exec(ctx, upsertCacheEntrySQL, kindTopping, t.ToppingID, nil, t.Price)
	if err != nil {
		return fmt.Errorf("upserting cached topping %q: %w", t.ToppingID, err)
	}
	return nil
}
