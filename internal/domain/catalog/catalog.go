// Package catalog holds the locally replicated pricing data for products and
// toppings. Entries are maintained by the cache updater from upstream catalog
// events and read by the pricing engine; they are never deleted, only
// overwritten.
package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotCached is returned when no cache entry exists for the requested item.
var ErrNotCached = errors.New("no price cache entry")

// PriceType distinguishes option groups that set the base price from groups
// that add on top of it.
type PriceType string

const (
	PriceTypeBase       PriceType = "base"
	PriceTypeAdditional PriceType = "additional"
)

// OptionGroup is one named group of a product's price configuration: a price
// type plus the priced options a customer can choose from.
type OptionGroup struct {
	PriceType        PriceType                  `json:"priceType"`
	AvailableOptions map[string]decimal.Decimal `json:"availableOptions"`
}

// ProductPricing is the cached priced configuration of a single product,
// keyed by option group name.
type ProductPricing struct {
	ProductID          string                 `json:"productId"`
	PriceConfiguration map[string]OptionGroup `json:"priceConfiguration"`
}

// ToppingPricing is the cached flat price of a single topping.
type ToppingPricing struct {
	ToppingID string          `json:"toppingId"`
	Price     decimal.Decimal `json:"price"`
}

// Snapshot is the read-only view of the price cache used by the pricing
// engine. Lookups return ErrNotCached when the item has not been replicated.
type Snapshot interface {
	Product(ctx context.Context, id string) (*ProductPricing, error)
	Topping(ctx context.Context, id string) (*ToppingPricing, error)
}

// Store extends Snapshot with the updater's write side. Upserts replace the
// entire entry for the item and must be idempotent: replaying the same event
// leaves the cache unchanged.
type Store interface {
	Snapshot
	UpsertProduct(ctx context.Context, p ProductPricing) error
	UpsertTopping(ctx context.Context, t ToppingPricing) error
}
