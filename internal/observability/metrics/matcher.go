package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// MatcherMetrics contains Prometheus metrics for match and recognize requests.
type MatcherMetrics struct {
	Requests     *prometheus.CounterVec
	Duration     *prometheus.HistogramVec
	BestDistance *prometheus.HistogramVec
	ScannedCards prometheus.Counter
	registry     *prometheus.Registry
}

// NewMatcherMetrics creates and registers matcher metrics.
func NewMatcherMetrics(registry *prometheus.Registry) (*MatcherMetrics, error) {
	m := &MatcherMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register matcher metrics: %w", err)
	}
	return m, nil
}

func (m *MatcherMetrics) initMetrics() {
	m.Requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cardmatch_match_requests_total",
		Help: "Match and recognize operations by kind, hash type and outcome.",
	}, []string{"operation", "hash_type", "outcome"})

	m.Duration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cardmatch_match_duration_seconds",
		Help:    "Time spent ranking the catalog for one query.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"hash_type"})

	m.BestDistance = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cardmatch_match_best_distance",
		Help:    "Distance of the best candidate per query.",
		Buckets: []float64{0, 2, 5, 10, 15, 20, 30, 50, 100, 200},
	}, []string{"hash_type"})

	m.ScannedCards = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cardmatch_match_scanned_cards_total",
		Help: "Catalog records compared against queries.",
	})
}

// RecordMatch records one ranking pass.
func (m *MatcherMetrics) RecordMatch(hashType string, scanned int, seconds float64, best int, found bool) {
	if m == nil {
		return
	}
	m.Duration.WithLabelValues(hashType).Observe(seconds)
	m.ScannedCards.Add(float64(scanned))
	if found {
		m.BestDistance.WithLabelValues(hashType).Observe(float64(best))
	}
}

// RecordRequest counts a match or recognize call with its outcome label.
func (m *MatcherMetrics) RecordRequest(operation, hashType, outcome string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(operation, hashType, outcome).Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *MatcherMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Requests.Describe(ch)
	m.Duration.Describe(ch)
	m.BestDistance.Describe(ch)
	m.ScannedCards.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *MatcherMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Requests.Collect(ch)
	m.Duration.Collect(ch)
	m.BestDistance.Collect(ch)
	m.ScannedCards.Collect(ch)
}
