// Package middleware resolves who is calling the corpus API and enforces
// their rate limit. Handlers read the caller with Owner.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/auth/apikey"
	apperrors "github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/logger"
)

const (
	OwnerHeader    = "X-Owner-ID"
	AnonymousOwner = "anonymous"
)

type identityKey struct{}

// Identity is the authenticated caller. KeyID is empty when authentication
// is disabled.
type Identity struct {
	OwnerID   string
	KeyID     string
	RateLimit int
}

type Authenticator interface {
	Validate(ctx context.Context, rawKey string) (*apikey.KeyInfo, error)
}

// Auth requires a valid API key on every request outside /health and binds
// the key's owner identity to the request context.
func Auth(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isExempt(r) {
				next.ServeHTTP(w, r)
				return
			}
			key := extractAPIKey(r)
			if key == "" {
				writeError(w, http.StatusUnauthorized, "missing api key")
				return
			}
			info, err := auth.Validate(r.Context(), key)
			if err != nil {
				if errors.Is(err, apperrors.ErrUnauthorized) {
					writeError(w, http.StatusUnauthorized, apperrors.Message(err, "invalid api key"))
					return
				}
				logger.FromContext(r.Context()).Error("api key validation failed", "error", err)
				writeError(w, http.StatusInternalServerError, "authentication error")
				return
			}
			id := Identity{OwnerID: info.OwnerID(), KeyID: info.ID, RateLimit: info.RateLimit}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// Anonymous is used when authentication is disabled. The owner comes from
// the X-Owner-ID header and defaults to "anonymous".
func Anonymous(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := strings.TrimSpace(r.Header.Get(OwnerHeader))
		if owner == "" {
			owner = AnonymousOwner
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), Identity{OwnerID: owner})))
	})
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func GetIdentity(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Owner is the caller's owner id, or "" outside an authenticated request.
func Owner(ctx context.Context) string {
	id, _ := GetIdentity(ctx)
	return id.OwnerID
}

func isExempt(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/health") || r.Method == http.MethodOptions
}

// extractAPIKey checks Authorization: Bearer, then X-API-Key, then the
// api_key query parameter.
func extractAPIKey(r *http.Request) string {
	if auth, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(auth)
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return r.URL.Query().Get("api_key")
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
