package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/pizza-orders/internal/domain/customer"
)

const (
	getCustomerByIDSQL = `SELECT id, user_id, first_name, last_name, email
		FROM customers WHERE id = $1`

	upsertCustomerSQL = `INSERT INTO customers (id, user_id, first_name, last_name, email)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET user_id = EXCLUDED.user_id,
		    first_name = EXCLUDED.first_name,
		    last_name = EXCLUDED.last_name,
		    email = EXCLUDED.email`
)

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository provides replicated customer identity lookups backed by
// PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// GetByID returns a customer by id, or customer.ErrNotFound.
func (r *CustomerRepository) GetByID(ctx context.Context, id string) (*customer.Customer, error) {
	var c customer.Customer
	err := r.pool.QueryRow(ctx, getCustomerByIDSQL, id).Scan(
		&c.ID, &c.UserID, &c.FirstName, &c.LastName, &c.Email,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("getting customer %q: %w", id, err)
	}
	return &c, nil
}

// Upsert replicates a customer identity.
func (r *CustomerRepository) Upsert(ctx context.Context, c *customer.Customer) error {
	_, err := r.pool.Exec(ctx, upsertCustomerSQL,
		c.ID, c.UserID, c.FirstName, c.LastName, c.Email,
	)
	if err != nil {
		return fmt.Errorf("upserting customer %q: %w", c.ID, err)
	}
	return nil
}
