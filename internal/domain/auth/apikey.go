// Package auth defines the staff identity attached to authenticated requests.
package auth

import "context"

// Staff roles permitted to mutate order status.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
)

// APIKeyInfo holds the identity and tenancy of a validated API key. Managers
// are scoped to a single tenant; admins have an empty TenantID.
type APIKeyInfo struct {
	ID       string
	KeyHash  string
	Name     string
	Role     string
	TenantID string
}

// Actor is the acting identity resolved by the authentication middleware.
type Actor struct {
	Role     string
	TenantID string
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

type actorKey struct{}

// WithActor stores the acting identity in the context.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFromContext extracts the acting identity set by the authentication
// middleware. The second return is false when the request was not
// authenticated.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
