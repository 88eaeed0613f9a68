package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// BuilderMetrics tracks catalog builder progress.
type BuilderMetrics struct {
	Cards        *prometheus.CounterVec
	Failures     *prometheus.CounterVec
	Flushes      *prometheus.CounterVec
	FlushedCards prometheus.Counter
	SetsVisited  prometheus.Counter
	RunsTotal    *prometheus.CounterVec
	registry     *prometheus.Registry
}

// NewBuilderMetrics creates and registers builder metrics.
func NewBuilderMetrics(registry *prometheus.Registry) (*BuilderMetrics, error) {
	m := &BuilderMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register builder metrics: %w", err)
	}
	return m, nil
}

func (m *BuilderMetrics) initMetrics() {
	m.Cards = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cardmatch_builder_cards_total",
		Help: "Cards handled by the builder by outcome.",
	}, []string{"outcome"})

	m.Failures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cardmatch_builder_failures_total",
		Help: "Per-card failures by reason.",
	}, []string{"reason"})

	m.Flushes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cardmatch_builder_flushes_total",
		Help: "Pending batch flushes by outcome.",
	}, []string{"status"})

	m.FlushedCards = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cardmatch_builder_flushed_cards_total",
		Help: "Records persisted by batch flushes.",
	})

	m.SetsVisited = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cardmatch_builder_sets_visited_total",
		Help: "External card sets listed by the builder.",
	})

	m.RunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cardmatch_builder_runs_total",
		Help: "Completed builder runs by result.",
	}, []string{"result"})
}

// RecordCard counts one card outcome.
func (m *BuilderMetrics) RecordCard(outcome string) {
	if m == nil {
		return
	}
	m.Cards.WithLabelValues(outcome).Inc()
}

// RecordFailure counts a per-card failure reason.
func (m *BuilderMetrics) RecordFailure(reason string) {
	if m == nil {
		return
	}
	m.Cards.WithLabelValues(OutcomeFailed).Inc()
	m.Failures.WithLabelValues(reason).Inc()
}

// RecordFlush counts a batch flush of n records.
func (m *BuilderMetrics) RecordFlush(n int, err error) {
	if m == nil {
		return
	}
	m.Flushes.WithLabelValues(statusLabel(err)).Inc()
	if err == nil {
		m.FlushedCards.Add(float64(n))
	}
}

// RecordSet counts a visited set.
func (m *BuilderMetrics) RecordSet() {
	if m == nil {
		return
	}
	m.SetsVisited.Inc()
}

// RecordRun counts a finished run; result is "completed", "interrupted" or "failed".
func (m *BuilderMetrics) RecordRun(result string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(result).Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *BuilderMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Cards.Describe(ch)
	m.Failures.Describe(ch)
	m.Flushes.Describe(ch)
	m.FlushedCards.Describe(ch)
	m.SetsVisited.Describe(ch)
	m.RunsTotal.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *BuilderMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Cards.Collect(ch)
	m.Failures.Collect(ch)
	m.Flushes.Collect(ch)
	m.FlushedCards.Collect(ch)
	m.SetsVisited.Collect(ch)
	m.RunsTotal.Collect(ch)
}
