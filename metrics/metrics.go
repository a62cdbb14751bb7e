// Package metrics bundles the Prometheus collectors of the aggregation
// service. Every method is safe on a nil receiver so callers can run without
// metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the aggregator.
type Metrics struct {
	Registry          *prometheus.Registry
	FetchesTotal      *prometheus.CounterVec
	FetchDuration     *prometheus.HistogramVec
	CandidatesTotal   *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
	DegradedTotal     *prometheus.CounterVec
	RateWaitSeconds   *prometheus.HistogramVec
	SearchesTotal     *prometheus.CounterVec
	SearchDuration    prometheus.Histogram
	CacheLookupsTotal *prometheus.CounterVec
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	fetches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricescout_fetches_total",
			Help: "Total page fetches issued, by source and strategy.",
		},
		[]string{"source", "strategy"},
	)
	fetchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricescout_fetch_duration_seconds",
			Help:    "Page fetch latency by strategy.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"strategy"},
	)
	candidates := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricescout_candidates_total",
			Help: "Candidate products extracted, by source.",
		},
		[]string{"source"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricescout_errors_total",
			Help: "Total fetch and extraction errors by type.",
		},
		[]string{"error_type"},
	)
	degraded := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricescout_degraded_total",
			Help: "Pipeline stages that fell back to their degrade path.",
		},
		[]string{"stage"},
	)
	rateWait := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricescout_rate_wait_seconds",
			Help:    "Time spent waiting for a rate-limit slot.",
			Buckets: []float64{0, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"key"},
	)
	searches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricescout_searches_total",
			Help: "Aggregation requests by outcome.",
		},
		[]string{"outcome"},
	)
	searchDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pricescout_search_duration_seconds",
			Help:    "End-to-end aggregation latency.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
	)
	cacheLookups := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricescout_cache_lookups_total",
			Help: "Result cache lookups by result.",
		},
		[]string{"result"},
	)

	registry.MustRegister(fetches, fetchDuration, candidates, errorsTotal, degraded,
		rateWait, searches, searchDuration, cacheLookups)

	return &Metrics{
		Registry:          registry,
		FetchesTotal:      fetches,
		FetchDuration:     fetchDuration,
		CandidatesTotal:   candidates,
		ErrorsTotal:       errorsTotal,
		DegradedTotal:     degraded,
		RateWaitSeconds:   rateWait,
		SearchesTotal:     searches,
		SearchDuration:    searchDuration,
		CacheLookupsTotal: cacheLookups,
	}
}

// IncFetch increments the fetch counter.
func (m *Metrics) IncFetch(source, strategy string) {
	if m == nil {
		return
	}
	m.FetchesTotal.WithLabelValues(source, strategy).Inc()
}

// ObserveFetch records a fetch duration.
func (m *Metrics) ObserveFetch(strategy string, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.WithLabelValues(strategy).Observe(d.Seconds())
}

// AddCandidates counts extracted candidates for a source.
func (m *Metrics) AddCandidates(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CandidatesTotal.WithLabelValues(source).Add(float64(n))
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncDegraded counts a stage that fell back.
func (m *Metrics) IncDegraded(stage string) {
	if m == nil {
		return
	}
	m.DegradedTotal.WithLabelValues(stage).Inc()
}

// ObserveRateWait implements ratelimit.WaitObserver.
func (m *Metrics) ObserveRateWait(key string, d time.Duration) {
	if m == nil {
		return
	}
	m.RateWaitSeconds.WithLabelValues(key).Observe(d.Seconds())
}

// ObserveSearch records one aggregation and its outcome.
func (m *Metrics) ObserveSearch(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.SearchesTotal.WithLabelValues(outcome).Inc()
	m.SearchDuration.Observe(d.Seconds())
}

// IncCache counts a cache hit or miss.
func (m *Metrics) IncCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookupsTotal.WithLabelValues(result).Inc()
}
