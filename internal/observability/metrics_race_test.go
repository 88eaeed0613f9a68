package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewMetricsConcurrency verifies that NewMetrics can be called concurrently
// because every instance owns its registry.
func TestNewMetricsConcurrency(t *testing.T) {
	t.Parallel()

	const numGoroutines = 50

	var wg sync.WaitGroup
	for range numGoroutines {
		wg.Go(func() {
			m, err := NewMetrics()
			if !assert.NoError(t, err) {
				return
			}
			assert.NotNil(t, m.registry)
			assert.NotNil(t, m.Catalog)
			assert.NotNil(t, m.Matcher)
			assert.NotNil(t, m.Builder)
			assert.NotNil(t, m.Upstream)
			assert.NotNil(t, m.HTTP)
		})
	}
	wg.Wait()
}

func TestMetricsHandlerExposition(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	m.Catalog.SetSize(42)
	m.Builder.RecordCard("added")
	m.HTTP.RecordHTTPRequest(http.MethodPost, "/match", http.StatusOK, 0.01)

	mux := http.NewServeMux()
	m.RegisterHandlers(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "cardmatch_catalog_cards 42")
	assert.Contains(t, string(body), `cardmatch_builder_cards_total{outcome="added"} 1`)
	assert.Contains(t, string(body), `cardmatch_http_requests_total{method="POST",path="/match",status_code="200"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
