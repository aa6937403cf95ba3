package middleware

import (
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/tracing"
)

// Trace opens a root span per request, keyed by the request id, and logs the
// finished span tree at debug level.
func Trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracing.StartSpan(r.Context(), r.Method+" "+normalizePath(r.URL.Path), GetRequestID(r.Context()))
		next.ServeHTTP(w, r.WithContext(ctx))
		span.End()
		log := logger.FromContext(ctx)
		if log.Enabled(ctx, slog.LevelDebug) {
			span.Log(ctx, log)
		}
	})
}
