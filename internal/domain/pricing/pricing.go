// Package pricing implements the deterministic cart pricing computation. It
// has no side effects: given the same cache snapshot and cart it always
// produces the same result, so it can be unit-tested without a database.
package pricing

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/pizza-orders/internal/domain/cart"
	"github.com/xenking/pizza-orders/internal/domain/catalog"
)

// Kind names the cache entry kind referenced by a pricing error.
type Kind string

const (
	KindProduct Kind = "product"
	KindTopping Kind = "topping"
)

// MissingCacheEntryError indicates a cart item references a product or
// topping that has not been replicated into the price cache yet. The cart
// must be resubmitted after the catalog syncs; prices never default to zero.
type MissingCacheEntryError struct {
	Kind   Kind
	ItemID string
}

func (e *MissingCacheEntryError) Error() string {
	return fmt.Sprintf("no price cache entry for %s %s", e.Kind, e.ItemID)
}

// InvalidOptionError indicates the chosen configuration references an option
// group or option value the cached product does not offer.
type InvalidOptionError struct {
	ProductID string
	Group     string
	Choice    string
}

func (e *InvalidOptionError) Error() string {
	if e.Choice == "" {
		return fmt.Sprintf("no cached configuration for option %q on product %s", e.Group, e.ProductID)
	}
	return fmt.Sprintf("%q is not a valid option for %q on product %s", e.Choice, e.Group, e.ProductID)
}

// PriceCart resolves every cart item against the cache snapshot and returns
// the cart total: sum over items of qty * (chosen option prices + topping
// prices). Item order does not affect the result.
func PriceCart(ctx context.Context, items []cart.Item, snap catalog.Snapshot) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, item := range items {
		unit, err := priceItem(ctx, item, snap)
		if err != nil {
			return decimal.Zero, err
		}
		qty := decimal.NewFromInt(int64(item.Qty))
		total = total.Add(unit.Mul(qty))
	}
	return total, nil
}

func priceItem(ctx context.Context, item cart.Item, snap catalog.Snapshot) (decimal.Decimal, error) {
	product, err := snap.Product(ctx, item.ProductID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotCached) {
			return decimal.Zero, &MissingCacheEntryError{Kind: KindProduct, ItemID: item.ProductID}
		}
		return decimal.Zero, errors.Wrapf(err, "lookup product %s", item.ProductID)
	}

	unit := decimal.Zero
	for group, choice := range item.Chosen.Options {
		cfg, ok := product.PriceConfiguration[group]
		if !ok {
			return decimal.Zero, &InvalidOptionError{ProductID: item.ProductID, Group: group}
		}
		price, ok := cfg.AvailableOptions[choice]
		if !ok {
			return decimal.Zero, &InvalidOptionError{ProductID: item.ProductID, Group: group, Choice: choice}
		}
		unit = unit.Add(price)
	}

	for _, t := range item.Chosen.SelectedToppings {
		topping, err := snap.Topping(ctx, t.ID)
		if err != nil {
			if errors.Is(err, catalog.ErrNotCached) {
				return decimal.Zero, &MissingCacheEntryError{Kind: KindTopping, ItemID: t.ID}
			}
			return decimal.Zero, errors.Wrapf(err, "lookup topping %s", t.ID)
		}
		unit = unit.Add(topping.Price)
	}

	return unit, nil
}
