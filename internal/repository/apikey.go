package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/pizza-orders/internal/domain/auth"
)

var errAPIKeyNotFound = errors.New("api key not found")

const (
	getAPIKeyByHashSQL = `SELECT id, key_hash, name, role, tenant_id
		FROM api_keys WHERE key_hash = $1 AND active = TRUE`

	upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, role, tenant_id, active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		ON CONFLICT (key_hash) DO UPDATE
		SET name = EXCLUDED.name,
		    role = EXCLUDED.role,
		    tenant_id = EXCLUDED.tenant_id,
		    active = TRUE`
)

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository provides staff API key lookups backed by PostgreSQL.
type APIKeyRepository struct {
	pool *pgxpool.Pool
}

// NewAPIKeyRepository returns an APIKeyRepository that uses the given pool.
func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{pool: pool}
}

// FindByHash looks up an active API key by its HMAC-SHA256 hash.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	var info auth.APIKeyInfo
	err := r.pool.QueryRow(ctx, getAPIKeyByHashSQL, hash).Scan(
		&info.ID, &info.KeyHash, &info.Name, &info.Role, &info.TenantID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errAPIKeyNotFound
		}
		return nil, fmt.Errorf("finding api key by hash: %w", err)
	}
	return &info, nil
}

// Upsert registers a staff API key by its hash.
func (r *APIKeyRepository) Upsert(ctx context.Context, info *auth.APIKeyInfo) error {
	_, err := r.pool.Exec(ctx, upsertAPIKeySQL,
		info.ID, info.KeyHash, info.Name, info.Role, info.TenantID,
	)
	if err != nil {
		return fmt.Errorf("upserting api key %q: %w", info.Name, err)
	}
	return nil
}
