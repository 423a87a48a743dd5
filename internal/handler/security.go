package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/xenking/pizza-orders/internal/domain/auth"
)

// StaffAuth guards staff-only routes. The API key from the Authorization
// header is hashed with HMAC-SHA256 under the pepper and looked up; the
// resolved actor is attached to the request context.
func StaffAuth(apikeys auth.Repository, pepper []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := bearerToken(r)
			if key == "" {
				unauthorized(w)
				return
			}

			mac := hmac.New(sha256.New, pepper)
			mac.Write([]byte(key))
			hash := mac.Sum(nil)

			info, err := apikeys.FindByHash(r.Context(), hex.EncodeToString(hash))
			if err != nil {
				unauthorized(w)
				return
			}

			// The lookup already matched, but the stored hash could differ
			// from what we computed if the repository returned a wrong row.
			stored, err := hex.DecodeString(info.KeyHash)
			if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
				unauthorized(w)
				return
			}

			ctx := auth.WithActor(r.Context(), auth.Actor{
				Role:     info.Role,
				TenantID: info.TenantID,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// HashAPIKey computes the stored hash for a raw API key. Shared with the
// seeding tool so keys registered offline match the middleware's lookup.
func HashAPIKey(key string, pepper []byte) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return token
	}
	return r.Header.Get("X-Api-Key")
}

func unauthorized(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, errorResponse{
		Code:    http.StatusUnauthorized,
		Message: "unauthorized",
	})
}
