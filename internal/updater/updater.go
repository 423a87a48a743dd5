// Package updater consumes upstream catalog change events and maintains the
// local price cache. It runs decoupled from request handling: order creation
// only ever reads the already-populated cache.
package updater

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/pizza-orders/internal/domain/catalog"
)

// Catalog stream layout. The upstream catalog service publishes one subject
// per item, which gives per-item ordering; nothing is guaranteed across
// items.
const (
	StreamCatalog   = "CATALOG"
	SubjectPrefix   = "catalog.>"
	SubjectProducts = "catalog.product.>"
	SubjectToppings = "catalog.topping.>"
)

// Updater applies catalog events to the price cache store.
type Updater struct {
	store catalog.Store
	lg    *zap.Logger
}

// New creates an Updater writing to the given store.
func New(store catalog.Store, lg *zap.Logger) *Updater {
	return &Updater{store: store, lg: lg}
}

// HandleProduct upserts a product pricing entry from a catalog event. A
// payload that fails to parse or carries no item id is dropped with a logged
// error (returns nil, the message is acked); store failures are returned so
// the message is redelivered.
func (u *Updater) HandleProduct(ctx context.Context, subject string, data []byte) error {
	msg, err := parseProductMessage(data)
	if err != nil {
		u.lg.Error("Dropping malformed product event",
			zap.String("subject", subject),
			zap.Error(err),
		)
		return nil
	}
	if msg.ProductID == "" {
		u.lg.Error("Dropping product event without item id", zap.String("subject", subject))
		return nil
	}

	if err := u.store.UpsertProduct(ctx, msg); err != nil {
		return errors.Wrapf(err, "upsert product %s", msg.ProductID)
	}

	u.lg.Debug("Product cache updated", zap.String("product_id", msg.ProductID))
	return nil
}

// HandleTopping upserts a topping price entry from a catalog event, with the
// same drop/redeliver semantics as HandleProduct.
func (u *Updater) HandleTopping(ctx context.Context, subject string, data []byte) error {
	msg, err := parseToppingMessage(data)
	if err != nil {
		u.lg.Error("Dropping malformed topping event",
			zap.String("subject", subject),
			zap.Error(err),
		)
		return nil
	}
	if msg.ToppingID == "" {
		u.lg.Error("Dropping topping event without item id", zap.String("subject", subject))
		return nil
	}

	if err := u.store.UpsertTopping(ctx, msg); err != nil {
		return errors.Wrapf(err, "upsert topping %s", msg.ToppingID)
	}

	u.lg.Debug("Topping cache updated", zap.String("topping_id", msg.ToppingID))
	return nil
}

// parseProductMessage decodes the upstream envelope
// {"event": "...", "data": {"id": "...", "priceConfiguration": {...}}}.
func parseProductMessage(data []byte) (catalog.ProductPricing, error) {
	var p catalog.ProductPricing

	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "data":
			return d.Obj(func(d *jx.Decoder, key string) error {
				switch key {
				case "id":
					id, err := d.Str()
					if err != nil {
						return errors.Wrap(err, "id")
					}
					p.ProductID = id
					return nil
				case "priceConfiguration":
					cfg, err := decodePriceConfiguration(d)
					if err != nil {
						return errors.Wrap(err, "priceConfiguration")
					}
					p.PriceConfiguration = cfg
					return nil
				default:
					return d.Skip()
				}
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return catalog.ProductPricing{}, err
	}
	return p, nil
}

// parseToppingMessage decodes the upstream envelope
// {"event": "...", "data": {"id": "...", "price": 30}}.
func parseToppingMessage(data []byte) (catalog.ToppingPricing, error) {
	var t catalog.ToppingPricing

	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "data":
			return d.Obj(func(d *jx.Decoder, key string) error {
				switch key {
				case "id":
					id, err := d.Str()
					if err != nil {
						return errors.Wrap(err, "id")
					}
					t.ToppingID = id
					return nil
				case "price":
					price, err := decodeDecimal(d)
					if err != nil {
						return errors.Wrap(err, "price")
					}
					t.Price = price
					return nil
				default:
					return d.Skip()
				}
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return catalog.ToppingPricing{}, err
	}
	return t, nil
}

// decodePriceConfiguration decodes the dynamic option-group mapping without
// a fixed schema: {group: {"priceType": "...", "availableOptions": {opt: price}}}.
func decodePriceConfiguration(d *jx.Decoder) (map[string]catalog.OptionGroup, error) {
	cfg := make(map[string]catalog.OptionGroup)
	err := d.Obj(func(d *jx.Decoder, group string) error {
		var og catalog.OptionGroup
		err := d.Obj(func(d *jx.Decoder, key string) error {
			switch key {
			case "priceType":
				s, err := d.Str()
				if err != nil {
					return err
				}
				og.PriceType = catalog.PriceType(s)
				return nil
			case "availableOptions":
				og.AvailableOptions = make(map[string]decimal.Decimal)
				return d.Obj(func(d *jx.Decoder, option string) error {
					price, err := decodeDecimal(d)
					if err != nil {
						return err
					}
					og.AvailableOptions[option] = price
					return nil
				})
			default:
				return d.Skip()
			}
		})
		if err != nil {
			return errors.Wrapf(err, "group %q", group)
		}
		cfg[group] = og
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// decodeDecimal reads a JSON number (or string-encoded number) losslessly.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	n, err := d.Num()
	if err != nil {
		return decimal.Zero, err
	}
	s := strings.Trim(n.String(), `"`)
	return decimal.NewFromString(s)
}
