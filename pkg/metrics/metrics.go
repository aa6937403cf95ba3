// Package metrics defines the Prometheus collectors for the TF-IDF service and
// exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	DocumentsUploaded    *prometheus.CounterVec
	DocumentsDeleted     prometheus.Counter
	CorpusDocuments      prometheus.Gauge
	CorpusTerms          prometheus.Gauge
	CorpusVersion        prometheus.Gauge
	CacheRequests        *prometheus.CounterVec
	ProcessingDuration   prometheus.Histogram
	InvariantViolations  prometheus.Counter
	CircuitBreakerState  *prometheus.GaugeVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewWithRegistry registers the collectors with reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration panics.
func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		DocumentsUploaded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "documents_uploaded_total",
				Help: "Document uploads by result (ok, invalid, duplicate, error).",
			},
			[]string{"result"},
		),
		DocumentsDeleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "documents_deleted_total",
				Help: "Total documents deleted.",
			},
		),
		CorpusDocuments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "corpus_documents",
				Help: "Number of live documents in the corpus.",
			},
		),
		CorpusTerms: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "corpus_terms",
				Help: "Number of distinct terms with non-zero document frequency.",
			},
		),
		CorpusVersion: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "corpus_version",
				Help: "Current corpus version.",
			},
		),
		CacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tfidf_cache_requests_total",
				Help: "TF-IDF cache lookups by tier (l1, l2) and result (hit, miss, error).",
			},
			[]string{"tier", "result"},
		),
		ProcessingDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "document_processing_seconds",
				Help:    "Time to tokenize, persist and index one uploaded document.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
		),
		InvariantViolations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "invariant_violations_total",
				Help: "Registry or index invariant violations detected.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
		gatherer: gatherer,
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.DocumentsUploaded,
		m.DocumentsDeleted,
		m.CorpusDocuments,
		m.CorpusTerms,
		m.CorpusVersion,
		m.CacheRequests,
		m.ProcessingDuration,
		m.InvariantViolations,
		m.CircuitBreakerState,
	)

	return m
}

// SetCorpus updates the corpus gauges.
func (m *Metrics) SetCorpus(documents, terms int, version uint64) {
	m.CorpusDocuments.Set(float64(documents))
	m.CorpusTerms.Set(float64(terms))
	m.CorpusVersion.Set(float64(version))
}

// Handler returns the Prometheus scrape HTTP handler for the registry the
// metrics were created with.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
