// Package router wires the corpus API routes and the middleware chain.
package router

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/analytics"
	apihandler "github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/api/handler"
	apimw "github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/api/middleware"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/auth/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/metrics"
	pkgmw "github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/middleware"
)

// Deps are the pieces the router mounts. Authenticator and Limiter may be
// nil, which disables API keys and rate limiting; Metrics may be nil too.
type Deps struct {
	Handler        *apihandler.Handler
	Stats          *analytics.Handler
	Health         *health.Checker
	Authenticator  apimw.Authenticator
	Limiter        *ratelimit.Limiter
	Metrics        *metrics.Metrics
	RequestTimeout time.Duration
}

// New builds the API.
//
//	POST   /api/v1/documents                upload (multipart or raw body)
//	POST   /api/v1/ingest                   queue an upload for the consumer
//	GET    /api/v1/documents                caller's documents, newest first
//	GET    /api/v1/documents/{id}           metadata
//	GET    /api/v1/documents/{id}/content   raw bytes
//	DELETE /api/v1/documents/{id}
//	GET    /api/v1/documents/{id}/tfidf     ranked terms, ?collection_id= scopes IDF
//	POST   /api/v1/collections              create from {"name","description"}
//	GET    /api/v1/collections              caller's collections
//	GET    /api/v1/collections/{cid}        collection with member titles
//	DELETE /api/v1/collections/{cid}
//	POST   /api/v1/collections/{cid}/documents/{id}
//	DELETE /api/v1/collections/{cid}/documents/{id}
//	GET    /api/v1/collections/{cid}/statistics  combined member terms
//	GET    /api/v1/corpus                   corpus size and version
//	GET    /api/v1/metrics                  processing statistics
//	GET    /health/live, /health/ready
//
// Middleware, outermost first:
//
//	RequestID → Trace → CORS → Auth → RateLimit → Metrics → Timeout → mux
func New(d Deps) http.Handler {
	h := d.Handler
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health/live", d.Health.LiveHandler())
	mux.HandleFunc("GET /health/ready", d.Health.ReadyHandler())

	mux.HandleFunc("POST /api/v1/documents", h.UploadDocument)
	mux.HandleFunc("POST /api/v1/ingest", h.SubmitDocument)
	mux.HandleFunc("GET /api/v1/documents", h.ListDocuments)
	mux.HandleFunc("GET /api/v1/documents/{id}", h.GetDocument)
	mux.HandleFunc("GET /api/v1/documents/{id}/content", h.DocumentContent)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", h.DeleteDocument)
	mux.HandleFunc("GET /api/v1/documents/{id}/tfidf", h.GetTfIdf)
	mux.HandleFunc("POST /api/v1/collections", h.CreateCollection)
	mux.HandleFunc("GET /api/v1/collections", h.ListCollections)
	mux.HandleFunc("GET /api/v1/collections/{cid}", h.GetCollection)
	mux.HandleFunc("DELETE /api/v1/collections/{cid}", h.DeleteCollection)
	mux.HandleFunc("POST /api/v1/collections/{cid}/documents/{id}", h.AddToCollection)
	mux.HandleFunc("DELETE /api/v1/collections/{cid}/documents/{id}", h.RemoveFromCollection)
	mux.HandleFunc("GET /api/v1/collections/{cid}/statistics", h.CollectionStatistics)
	mux.HandleFunc("GET /api/v1/corpus", h.CorpusStats)
	mux.HandleFunc("GET /api/v1/metrics", d.Stats.Stats)

	var chain http.Handler = mux
	chain = pkgmw.Timeout(d.RequestTimeout)(chain)
	if d.Metrics != nil {
		chain = pkgmw.Metrics(d.Metrics)(chain)
	}
	if d.Limiter != nil {
		chain = apimw.RateLimit(d.Limiter)(chain)
	}
	if d.Authenticator != nil {
		chain = apimw.Auth(d.Authenticator)(chain)
	} else {
		chain = apimw.Anonymous(chain)
	}
	chain = apimw.CORS(apimw.DefaultCORSConfig())(chain)
	chain = pkgmw.Trace(chain)
	chain = pkgmw.RequestID(chain)
	return chain
}
