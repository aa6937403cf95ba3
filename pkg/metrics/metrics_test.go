package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetCorpusAndScrape(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg, reg)

	m.SetCorpus(3, 17, 9)
	m.CacheRequests.WithLabelValues("l1", "hit").Inc()
	m.DocumentsUploaded.WithLabelValues("ok").Add(2)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.CorpusDocuments))
	assert.Equal(t, 17.0, testutil.ToFloat64(m.CorpusTerms))
	assert.Equal(t, 9.0, testutil.ToFloat64(m.CorpusVersion))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DocumentsUploaded.WithLabelValues("ok")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "corpus_documents 3")
	assert.Contains(t, string(body), `tfidf_cache_requests_total{result="hit",tier="l1"} 1`)
}
