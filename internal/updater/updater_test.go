package updater

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/pizza-orders/internal/domain/catalog"
)

type mockStore struct {
	products map[string]catalog.ProductPricing
	toppings map[string]catalog.ToppingPricing

	upsertErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		products: make(map[string]catalog.ProductPricing),
		toppings: make(map[string]catalog.ToppingPricing),
	}
}

func (m *mockStore) Product(_ context.Context, id string) (*catalog.ProductPricing, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, catalog.ErrNotCached
	}
	return &p, nil
}

func (m *mockStore) Topping(_ context.Context, id string) (*catalog.ToppingPricing, error) {
	t, ok := m.toppings[id]
	if !ok {
		return nil, catalog.ErrNotCached
	}
	return &t, nil
}

func (m *mockStore) UpsertProduct(_ context.Context, p catalog.ProductPricing) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.products[p.ProductID] = p
	return nil
}

func (m *mockStore) UpsertTopping(_ context.Context, t catalog.ToppingPricing) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.toppings[t.ToppingID] = t
	return nil
}

const productEvent = `{
	"event": "PRODUCT_UPDATE",
	"data": {
		"id": "margherita",
		"name": "Margherita",
		"priceConfiguration": {
			"size": {
				"priceType": "base",
				"availableOptions": {"small": 200, "medium": 300, "large": 400}
			},
			"crust": {
				"priceType": "aditional",
				"availableOptions": {"thin": 0, "cheese-burst": 50}
			}
		}
	}
}`

func TestHandleProduct_Upsert(t *testing.T) {
	store := newMockStore()
	u := New(store, zap.NewNop())

	err := u.HandleProduct(context.Background(), "catalog.product.margherita", []byte(productEvent))

	require.NoError(t, err)
	p, err := store.Product(context.Background(), "margherita")
	require.NoError(t, err)
	assert.Len(t, p.PriceConfiguration, 2)
	assert.Equal(t, catalog.PriceTypeBase, p.PriceConfiguration["size"].PriceType)
	assert.True(t, decimal.NewFromInt(300).Equal(p.PriceConfiguration["size"].AvailableOptions["medium"]))
	assert.True(t, decimal.NewFromInt(50).Equal(p.PriceConfiguration["crust"].AvailableOptions["cheese-burst"]))
}

func TestHandleProduct_OverwritesPreviousEntry(t *testing.T) {
	store := newMockStore()
	u := New(store, zap.NewNop())

	require.NoError(t, u.HandleProduct(context.Background(), "catalog.product.margherita", []byte(productEvent)))

	updated := `{"event": "PRODUCT_UPDATE", "data": {"id": "margherita", "priceConfiguration": {
		"size": {"priceType": "base", "availableOptions": {"small": 250}}
	}}}`
	require.NoError(t, u.HandleProduct(context.Background(), "catalog.product.margherita", []byte(updated)))

	p, err := store.Product(context.Background(), "margherita")
	require.NoError(t, err)
	assert.Len(t, p.PriceConfiguration, 1)
	assert.True(t, decimal.NewFromInt(250).Equal(p.PriceConfiguration["size"].AvailableOptions["small"]))
}

func TestHandleProduct_MalformedPayloadIsDropped(t *testing.T) {
	store := newMockStore()
	u := New(store, zap.NewNop())

	err := u.HandleProduct(context.Background(), "catalog.product.x", []byte(`{"data": [1, 2]`))

	assert.NoError(t, err, "malformed payloads must be acked, not redelivered")
	assert.Empty(t, store.products)
}

func TestHandleProduct_MissingIDIsDropped(t *testing.T) {
	store := newMockStore()
	u := New(store, zap.NewNop())

	err := u.HandleProduct(context.Background(), "catalog.product.x",
		[]byte(`{"event": "PRODUCT_UPDATE", "data": {"priceConfiguration": {}}}`))

	assert.NoError(t, err)
	assert.Empty(t, store.products)
}

func TestHandleProduct_StoreFailureIsRetried(t *testing.T) {
	store := newMockStore()
	store.upsertErr = errors.New("connection reset")
	u := New(store, zap.NewNop())

	err := u.HandleProduct(context.Background(), "catalog.product.margherita", []byte(productEvent))

	assert.Error(t, err, "store failures must propagate for redelivery")
}

func TestHandleTopping_Upsert(t *testing.T) {
	store := newMockStore()
	u := New(store, zap.NewNop())

	err := u.HandleTopping(context.Background(), "catalog.topping.olives",
		[]byte(`{"event": "TOPPING_UPDATE", "data": {"id": "olives", "name": "Olives", "price": 30}}`))

	require.NoError(t, err)
	top, err := store.Topping(context.Background(), "olives")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(30).Equal(top.Price))
}

func TestHandleTopping_StringPrice(t *testing.T) {
	store := newMockStore()
	u := New(store, zap.NewNop())

	err := u.HandleTopping(context.Background(), "catalog.topping.paneer",
		[]byte(`{"data": {"id": "paneer", "price": "49.50"}}`))

	require.NoError(t, err)
	top, err := store.Topping(context.Background(), "paneer")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromFloat(49.5).Equal(top.Price))
}

func TestHandleTopping_MalformedPriceIsDropped(t *testing.T) {
	store := newMockStore()
	u := New(store, zap.NewNop())

	err := u.HandleTopping(context.Background(), "catalog.topping.olives",
		[]byte(`{"data": {"id": "olives", "price": {"amount": 30}}}`))

	assert.NoError(t, err)
	assert.Empty(t, store.toppings)
}
