package saga

import (
	"sort"
	"sync"
	"time"
)

// DefaultMetricsWindow is how many recent durations feed the percentile
// calculations per saga type.
const DefaultMetricsWindow = 1000

// TypeStats is a point-in-time metrics snapshot for one saga type.
type TypeStats struct {
	Executions           int64         `json:"executions"`
	Successes            int64         `json:"successes"`
	Failures             int64         `json:"failures"`
	Compensations        int64         `json:"compensations"`
	CompensationFailures int64         `json:"compensation_failures"`
	AvgDuration          time.Duration `json:"avg_duration"`
	P50                  time.Duration `json:"p50"`
	P95                  time.Duration `json:"p95"`
	P99                  time.Duration `json:"p99"`
}

type typeMetrics struct {
	executions           int64
	successes            int64
	failures             int64
	compensations        int64
	compensationFailures int64
	durations            []time.Duration
	next                 int
	full                 bool
}

// Metrics aggregates per-type saga statistics over a sliding window of
// recent durations.
type Metrics struct {
	mu     sync.Mutex
	window int
	types  map[string]*typeMetrics
}

// NewMetrics creates a collector with the default window.
func NewMetrics() *Metrics {
	return NewMetricsWithWindow(DefaultMetricsWindow)
}

// NewMetricsWithWindow creates a collector keeping the last n durations
// per type.
func NewMetricsWithWindow(n int) *Metrics {
	if n <= 0 {
		n = DefaultMetricsWindow
	}
	return &Metrics{window: n, types: make(map[string]*typeMetrics)}
}

func (m *Metrics) forType(sagaType string) *typeMetrics {
	tm, ok := m.types[sagaType]
	if !ok {
		tm = &typeMetrics{durations: make([]time.Duration, 0, m.window)}
		m.types[sagaType] = tm
	}
	return tm
}

// RecordExecution adds one finished run.
func (m *Metrics) RecordExecution(sagaType string, d time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tm := m.forType(sagaType)
	tm.executions++
	if success {
		tm.successes++
	} else {
		tm.failures++
	}

	if len(tm.durations) < m.window {
		tm.durations = append(tm.durations, d)
	} else {
		tm.durations[tm.next] = d
		tm.next = (tm.next + 1) % m.window
		tm.full = true
	}
}

// RecordCompensation adds one compensation pass outcome.
func (m *Metrics) RecordCompensation(sagaType string, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tm := m.forType(sagaType)
	tm.compensations++
	if failed {
		tm.compensationFailures++
	}
}

// Stats returns the snapshot for one saga type.
func (m *Metrics) Stats(sagaType string) TypeStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	tm, ok := m.types[sagaType]
	if !ok {
		return TypeStats{}
	}
	return tm.snapshot()
}

// Snapshot returns the stats for every saga type seen so far.
func (m *Metrics) Snapshot() map[string]TypeStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]TypeStats, len(m.types))
	for sagaType, tm := range m.types {
		out[sagaType] = tm.snapshot()
	}
	return out
}

func (tm *typeMetrics) snapshot() TypeStats {
	stats := TypeStats{
		Executions:           tm.executions,
		Successes:            tm.successes,
		Failures:             tm.failures,
		Compensations:        tm.compensations,
		CompensationFailures: tm.compensationFailures,
	}
	if len(tm.durations) == 0 {
		return stats
	}

	sorted := make([]time.Duration, len(tm.durations))
	copy(sorted, tm.durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	stats.AvgDuration = total / time.Duration(len(sorted))
	stats.P50 = percentile(sorted, 0.50)
	stats.P95 = percentile(sorted, 0.95)
	stats.P99 = percentile(sorted, 0.99)
	return stats
}

// percentile indexes into a sorted window; callers guarantee it is
// non-empty.
func percentile(sorted []time.Duration, q float64) time.Duration {
	idx := int(float64(len(sorted)) * q)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
