// Package metrics provides custom Prometheus metrics for the cardmatch components.
//
// Every collector is nil-safe: components hold a possibly nil pointer and call
// the recording methods unconditionally.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// CatalogMetrics contains Prometheus metrics for the fingerprint catalog.
type CatalogMetrics struct {
	Size            prometheus.Gauge
	Writes          *prometheus.CounterVec
	PersistDuration *prometheus.HistogramVec
	PersistErrors   *prometheus.CounterVec
	registry        *prometheus.Registry
}

// NewCatalogMetrics creates and registers catalog metrics.
func NewCatalogMetrics(registry *prometheus.Registry) (*CatalogMetrics, error) {
	m := &CatalogMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register catalog metrics: %w", err)
	}
	return m, nil
}

func (m *CatalogMetrics) initMetrics() {
	m.Size = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cardmatch_catalog_cards",
		Help: "Number of fingerprint records in the catalog.",
	})

	m.Writes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cardmatch_catalog_writes_total",
		Help: "Catalog write operations by operation and outcome.",
	}, []string{"operation", "status"})

	m.PersistDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cardmatch_catalog_persist_duration_seconds",
		Help:    "Time spent writing a full catalog snapshot.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"backend"})

	m.PersistErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cardmatch_catalog_persist_errors_total",
		Help: "Failed catalog snapshot writes.",
	}, []string{"backend"})
}

// SetSize records the current number of records.
func (m *CatalogMetrics) SetSize(n int) {
	if m == nil {
		return
	}
	m.Size.Set(float64(n))
}

// RecordWrite counts an add, batch or remove operation.
func (m *CatalogMetrics) RecordWrite(operation string, err error) {
	if m == nil {
		return
	}
	m.Writes.WithLabelValues(operation, statusLabel(err)).Inc()
}

// ObservePersist records one snapshot write for backend.
func (m *CatalogMetrics) ObservePersist(backend string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.PersistDuration.WithLabelValues(backend).Observe(seconds)
	if err != nil {
		m.PersistErrors.WithLabelValues(backend).Inc()
	}
}

// Describe implements the prometheus.Collector interface.
func (m *CatalogMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Size.Describe(ch)
	m.Writes.Describe(ch)
	m.PersistDuration.Describe(ch)
	m.PersistErrors.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *CatalogMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Size.Collect(ch)
	m.Writes.Collect(ch)
	m.PersistDuration.Collect(ch)
	m.PersistErrors.Collect(ch)
}
