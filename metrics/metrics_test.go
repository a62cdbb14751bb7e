package metrics

import (
	"testing"
	"time"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.IncFetch("shop", "http")
	m.ObserveFetch("http", time.Second)
	m.AddCandidates("shop", 3)
	m.IncError("timeout")
	m.IncDegraded("rank")
	m.ObserveRateWait("shop", time.Second)
	m.ObserveSearch("ok", time.Second)
	m.IncCache(true)
}

func TestCounters(t *testing.T) {
	m := New()
	m.IncFetch("Amazon US", "render")
	m.IncFetch("Amazon US", "render")
	m.AddCandidates("Amazon US", 4)
	m.AddCandidates("Amazon US", 0)
	m.IncDegraded("relevance")
	m.IncCache(false)

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	counters := make(map[string]float64)
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				counters[mf.GetName()] += c.GetValue()
			}
		}
	}

	tests := []struct {
		name string
		want float64
	}{
		{name: "pricescout_fetches_total", want: 2},
		{name: "pricescout_candidates_total", want: 4},
		{name: "pricescout_degraded_total", want: 1},
		{name: "pricescout_cache_lookups_total", want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := counters[tt.name]; got != tt.want {
				t.Fatalf("%s = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}
