package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/auth/ratelimit"
)

// RateLimit enforces the per-key limit of the identity set by Auth. Callers
// without a key (auth disabled, health checks) are not limited.
func RateLimit(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := GetIdentity(r.Context())
			if !ok || id.KeyID == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !limiter.Allow(id.KeyID, id.RateLimit) {
				wait := limiter.RetryAfter(id.KeyID, id.RateLimit)
				w.Header().Set("Retry-After", strconv.Itoa(max(1, int(math.Ceil(wait.Seconds())))))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
