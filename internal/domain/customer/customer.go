// Package customer holds the minimal customer identity the order flow needs:
// resolving a customer for event enrichment and carrying delivery addresses.
// Customer management itself lives in a separate service.
package customer

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when no customer exists for the given id.
var ErrNotFound = errors.New("customer not found")

// Address is a delivery address submitted with an order.
type Address struct {
	Label      string `json:"label"`
	Text       string `json:"text"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Phone      string `json:"phone"`
	IsDefault  bool   `json:"isDefault"`
}

// Customer is the replicated identity of a platform customer.
type Customer struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// Repository provides customer lookups.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Customer, error)
}
