package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/tracing"
)

func TestRequestIDGeneratesAndPropagates(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"/api/v1/documents":                         "/api/v1/documents",
		"/api/v1/documents/":                        "/api/v1/documents/",
		"/api/v1/documents/9f1c":                    "/api/v1/documents/:id",
		"/api/v1/documents/9f1c/tfidf":              "/api/v1/documents/:id/tfidf",
		"/api/v1/documents/9f1c/content":            "/api/v1/documents/:id/content",
		"/api/v1/corpus":                            "/api/v1/corpus",
		"/health/ready":                             "/health/ready",
		"/api/v1/collections":                       "/api/v1/collections",
		"/api/v1/collections/c7":                    "/api/v1/collections/:cid",
		"/api/v1/collections/c7/statistics":         "/api/v1/collections/:cid/statistics",
		"/api/v1/collections/c7/documents/d9":       "/api/v1/collections/:cid/documents/:id",
		"/api/v1/collections/documents/documents/x": "/api/v1/collections/:cid/documents/:id",
	}
	for in, want := range cases {
		assert.Equal(t, want, normalizePath(in), in)
	}
}

func TestMetricsRecordsNormalizedPath(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg, reg)
	h := Metrics(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/documents/abc/tfidf", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/documents/def/tfidf", nil))

	got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/documents/:id/tfidf", "404"))
	assert.Equal(t, 2.0, got)
	assert.Zero(t, testutil.ToFloat64(m.HTTPRequestsInFlight))
}

func TestTimeoutWritesGatewayTimeout(t *testing.T) {
	h := Timeout(20 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		time.Sleep(10 * time.Millisecond)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestTimeoutPassesFastResponses(t *testing.T) {
	h := Timeout(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestTraceAttachesRootSpan(t *testing.T) {
	var span *tracing.Span
	h := RequestID(Trace(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		span = tracing.FromContext(r.Context())
	})))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/x", nil)
	req.Header.Set(RequestIDHeader, "trace-me")
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, span)
	assert.Equal(t, "trace-me", span.TraceID)
	assert.Equal(t, "GET /api/v1/documents/:id", span.Name)
}
