// Package cart defines the transient cart submitted with an order request.
// Client-supplied prices are never trusted; every item is repriced against
// the price cache before the order is persisted.
package cart

import "github.com/shopspring/decimal"

// SelectedTopping is a topping the customer added to a cart item. The price
// carried here is display data from the client; the authoritative price is
// resolved from the topping cache.
type SelectedTopping struct {
	ID    string          `json:"_id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// ChosenConfiguration records the customer's selection: one option per price
// configuration group, plus any toppings.
type ChosenConfiguration struct {
	Options          map[string]string `json:"priceConfiguration"`
	SelectedToppings []SelectedTopping `json:"selectedToppings"`
}

// Item is one line of the cart.
type Item struct {
	ProductID string              `json:"_id"`
	Name      string              `json:"name"`
	Qty       int                 `json:"qty"`
	Chosen    ChosenConfiguration `json:"choosenConfiguration"`
}
