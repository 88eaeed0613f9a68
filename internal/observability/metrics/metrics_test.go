package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilCollectorsAreNoOps(t *testing.T) {
	t.Parallel()

	var (
		c *CatalogMetrics
		m *MatcherMetrics
		b *BuilderMetrics
		u *UpstreamMetrics
		h *HTTPMetrics
	)

	assert.NotPanics(t, func() {
		c.SetSize(1)
		c.RecordWrite(OpAdd, nil)
		c.ObservePersist("file", 0.1, nil)
		m.RecordMatch("perceptual", 10, 0.01, 3, true)
		m.RecordRequest("match", "perceptual", "ok")
		b.RecordCard(OutcomeAdded)
		b.RecordFailure("no-image")
		b.RecordFlush(3, nil)
		b.RecordSet()
		b.RecordRun("completed")
		u.RecordRequest("sets", 200, 0.2)
		u.RecordCache(true)
		u.AddImageBytes(100)
		h.RecordHTTPRequest("GET", "/health", 200, 0.001)
		h.RecordHTTPError("/match", "invalid-input")
	})
}

func TestCatalogMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := NewCatalogMetrics(reg)
	require.NoError(t, err)

	m.SetSize(7)
	m.RecordWrite(OpAdd, nil)
	m.RecordWrite(OpAdd, errors.New("conflict"))
	m.ObservePersist("file", 0.02, errors.New("disk full"))

	assert.InDelta(t, 7, testutil.ToFloat64(m.Size), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Writes.WithLabelValues(OpAdd, StatusSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Writes.WithLabelValues(OpAdd, StatusError)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.PersistErrors.WithLabelValues("file")), 0)

	_, err = NewCatalogMetrics(reg)
	assert.Error(t, err, "duplicate registration")
}

func TestBuilderMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewBuilderMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordCard(OutcomeAdded)
	m.RecordCard(OutcomeSkipped)
	m.RecordFailure("fetch")
	m.RecordFlush(3, nil)
	m.RecordFlush(5, errors.New("boom"))

	assert.InDelta(t, 1, testutil.ToFloat64(m.Cards.WithLabelValues(OutcomeFailed)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Failures.WithLabelValues("fetch")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.FlushedCards), 0, "failed flushes add nothing")
	assert.InDelta(t, 1, testutil.ToFloat64(m.Flushes.WithLabelValues(StatusError)), 0)
}

func TestUpstreamMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewUpstreamMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordRequest("sets", 200, 0.1)
	m.RecordRequest("image", 0, 15)
	m.RecordCache(true)
	m.RecordCache(false)
	m.RecordCache(false)

	assert.InDelta(t, 1, testutil.ToFloat64(m.Requests.WithLabelValues("image", "0")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CacheHits), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.CacheMisses), 0)
}
