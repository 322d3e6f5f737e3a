package service

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Counter metric names emitted by the underwriting pipeline.
const (
	MetricUnderwriteCitationsTotal     = "underwrite_citations_total"
	MetricUnderwriteWithCitationsTotal = "underwrite_with_citations_total"
)

// MetricsStore is a process-local counter store. It is safe for concurrent
// use.
type MetricsStore struct {
	mu       sync.Mutex
	counters map[string]float64
}

// NewMetricsStore creates an empty store.
func NewMetricsStore() *MetricsStore {
	return &MetricsStore{counters: make(map[string]float64)}
}

// Increment adds delta to the named counter.
func (m *MetricsStore) Increment(name string, delta float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name] += delta
}

// Counter returns the current value of the named counter.
func (m *MetricsStore) Counter(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

// RenderText renders all counters in Prometheus exposition format, sorted by
// name for stable output.
func (m *MetricsStore) RenderText() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.counters))
	for name := range m.counters {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "# TYPE %s counter\n", name)
		fmt.Fprintf(&b, "%s %g\n", name, m.counters[name])
	}
	return b.String()
}

// Clear resets all counters.
func (m *MetricsStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = make(map[string]float64)
}
