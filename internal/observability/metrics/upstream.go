package metrics

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// UpstreamMetrics tracks requests to the external card database.
type UpstreamMetrics struct {
	Requests    *prometheus.CounterVec
	Duration    *prometheus.HistogramVec
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
	ImageBytes  prometheus.Counter
	registry    *prometheus.Registry
}

// NewUpstreamMetrics creates and registers upstream metrics.
func NewUpstreamMetrics(registry *prometheus.Registry) (*UpstreamMetrics, error) {
	m := &UpstreamMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register upstream metrics: %w", err)
	}
	return m, nil
}

func (m *UpstreamMetrics) initMetrics() {
	m.Requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cardmatch_upstream_requests_total",
		Help: "Requests to the card database by endpoint and HTTP status (0 for transport errors).",
	}, []string{"endpoint", "status"})

	m.Duration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cardmatch_upstream_request_duration_seconds",
		Help:    "Card database request latency.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"endpoint"})

	m.CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cardmatch_upstream_cache_hits_total",
		Help: "Listing requests served from cache.",
	})

	m.CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cardmatch_upstream_cache_misses_total",
		Help: "Listing requests that went to the network.",
	})

	m.ImageBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cardmatch_upstream_image_bytes_total",
		Help: "Bytes of card images downloaded.",
	})
}

// RecordRequest records a finished request. status is 0 when no response arrived.
func (m *UpstreamMetrics) RecordRequest(endpoint string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	m.Duration.WithLabelValues(endpoint).Observe(seconds)
}

// RecordCache counts a cache lookup.
func (m *UpstreamMetrics) RecordCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.Inc()
	} else {
		m.CacheMisses.Inc()
	}
}

// AddImageBytes counts downloaded image bytes.
func (m *UpstreamMetrics) AddImageBytes(n int) {
	if m == nil {
		return
	}
	m.ImageBytes.Add(float64(n))
}

// Describe implements the prometheus.Collector interface.
func (m *UpstreamMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Requests.Describe(ch)
	m.Duration.Describe(ch)
	m.CacheHits.Describe(ch)
	m.CacheMisses.Describe(ch)
	m.ImageBytes.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *UpstreamMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Requests.Collect(ch)
	m.Duration.Collect(ch)
	m.CacheHits.Collect(ch)
	m.CacheMisses.Collect(ch)
	m.ImageBytes.Collect(ch)
}
