package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/pizza-orders/internal/domain/order"
)

const orderColumns = `id, cart, address, comment, customer_id, tenant_id,
	total, discount, taxes, delivery_charges,
	payment_mode, order_status, payment_status, payment_id, created_at`

const (
	insertOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	insertIdempotencyKeySQL = `INSERT INTO idempotency_keys (key, order_id, stored_order, created_at)
		VALUES ($1, $2, $3, $4)`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersByCustomerSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE customer_id = $1 AND tenant_id = $2 ORDER BY created_at DESC`

	updateOrderStatusSQL = `UPDATE orders SET order_status = $2
		WHERE id = $1 RETURNING ` + orderColumns

	updatePaymentStatusSQL = `UPDATE orders
		SET payment_status = $2,
		    payment_id = CASE WHEN $3 = '' THEN payment_id ELSE $3 END
		WHERE id = $1 RETURNING ` + orderColumns

	lookupIdempotencyKeySQL = `SELECT stored_order FROM idempotency_keys
		WHERE key = $1 AND created_at >= $2`

	deleteExpiredKeysSQL = `DELETE FROM idempotency_keys WHERE created_at < $1`
)

var (
	_ order.Repository       = (*OrderRepository)(nil)
	_ order.IdempotencyStore = (*OrderRepository)(nil)
)

// OrderRepository implements order.Repository and order.IdempotencyStore
// backed by PostgreSQL. Both live on the same repository because order
// creation writes the order row and its idempotency record in one
// transaction.
type OrderRepository struct {
	pool      *pgxpool.Pool
	retention time.Duration
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
// Idempotency records older than retention are invisible to Lookup even
// before the reaper deletes them.
func NewOrderRepository(pool *pgxpool.Pool, retention time.Duration) *OrderRepository {
	return &OrderRepository{pool: pool, retention: retention}
}

// Create inserts the order and its idempotency record atomically. When the
// key is already recorded, the transaction rolls back and
// order.ErrDuplicateIdempotencyKey is returned with no partial writes.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order, idempotencyKey string) error {
	cartJSON, err := json.Marshal(o.Cart)
	if err != nil {
		return fmt.Errorf("marshaling order cart: %w", err)
	}
	addressJSON, err := json.Marshal(o.Address)
	if err != nil {
		return fmt.Errorf("marshaling order address: %w", err)
	}
	orderJSON, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshaling order snapshot: %w", err)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("beginning order transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, insertOrderSQL,
		o.ID, cartJSON, addressJSON, o.Comment, o.CustomerID, o.TenantID,
		o.Total, o.Discount, o.Taxes, o.DeliveryCharges,
		o.PaymentMode, o.Status, o.PaymentStatus, o.PaymentID, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting order %q: %w", o.ID, err)
	}

	_, err = tx.Exec(ctx, insertIdempotencyKeySQL, idempotencyKey, o.ID, orderJSON, o.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "idempotency_keys") {
			return order.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("inserting idempotency record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing order %q: %w", o.ID, err)
	}
	return nil
}

// GetByID returns a single order by its identifier.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// ListByCustomer returns a customer's orders within a tenant, newest first.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID, tenantID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByCustomerSQL, customerID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing orders for customer %q: %w", customerID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// UpdateStatus overwrites the fulfilment status and returns the updated order.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status order.Status) (*order.Order, error) {
	return r.updateReturning(ctx, updateOrderStatusSQL, id, string(status))
}

// UpdatePaymentStatus overwrites the payment status, keeping the existing
// payment id when an empty one is given, and returns the updated order.
func (r *OrderRepository) UpdatePaymentStatus(ctx context.Context, id string, status order.PaymentStatus, paymentID string) (*order.Order, error) {
	return r.updateReturning(ctx, updatePaymentStatusSQL, id, string(status), paymentID)
}

func (r *OrderRepository) updateReturning(ctx context.Context, sql, id string, args ...any) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, sql, append([]any{id}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("updating order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("updating order %q: %w", id, err)
	}
	return &o, nil
}

// Lookup returns the order stored for the idempotency key, treating records
// past the retention window as absent.
func (r *OrderRepository) Lookup(ctx context.Context, key string) (*order.Order, error) {
	cutoff := time.Now().Add(-r.retention)

	var orderJSON []byte
	err := r.pool.QueryRow(ctx, lookupIdempotencyKeySQL, key, cutoff).Scan(&orderJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNoIdempotencyRecord
		}
		return nil, fmt.Errorf("looking up idempotency key: %w", err)
	}

	var o order.Order
	if err := json.Unmarshal(orderJSON, &o); err != nil {
		return nil, fmt.Errorf("decoding stored order: %w", err)
	}
	return &o, nil
}

// DeleteExpired removes idempotency records created before the cutoff and
// reports how many were deleted.
func (r *OrderRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, deleteExpiredKeysSQL, before)
	if err != nil {
		return 0, fmt.Errorf("deleting expired idempotency records: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o           order.Order
		cartJSON    []byte
		addressJSON []byte
	)
	err := row.Scan(
		&o.ID, &cartJSON, &addressJSON, &o.Comment, &o.CustomerID, &o.TenantID,
		&o.Total, &o.Discount, &o.Taxes, &o.DeliveryCharges,
		&o.PaymentMode, &o.Status, &o.PaymentStatus, &o.PaymentID, &o.CreatedAt,
	)
	if err != nil {
		return order.Order{}, err
	}
	if err := json.Unmarshal(cartJSON, &o.Cart); err != nil {
		return order.Order{}, fmt.Errorf("decoding order cart: %w", err)
	}
	if err := json.Unmarshal(addressJSON, &o.Address); err != nil {
		return order.Order{}, fmt.Errorf("decoding order address: %w", err)
	}
	return o, nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique violation on a
// constraint of the given table.
func isUniqueViolation(err error, table string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == "23505" &&
		strings.HasPrefix(pgErr.ConstraintName, table)
}
