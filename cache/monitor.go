package cache

import (
	"sync"
	"time"
)

// SlowQueryThreshold is the duration above which a query counts as slow.
const SlowQueryThreshold = 100 * time.Millisecond

// QueryMetrics accumulates counters for one query type.
type QueryMetrics struct {
	TotalCount       uint64
	CumulativeDur    time.Duration
	SlowCount        uint64
	CachedCount      uint64
	FailureCount     uint64
}

// MeanDuration returns the average query duration, or 0 if none recorded.
func (m QueryMetrics) MeanDuration() time.Duration {
	if m.TotalCount == 0 {
		return 0
	}
	return m.CumulativeDur / time.Duration(m.TotalCount)
}

// Monitor tracks QueryMetrics per query type (e.g. "recent", "range",
// "aggregates", "info").
type Monitor struct {
	mu      sync.Mutex
	metrics map[string]QueryMetrics
}

func NewMonitor() *Monitor {
	return &Monitor{metrics: make(map[string]QueryMetrics)}
}

// Timer is a scoped guard returned by Monitor.Start; call Stop exactly once
// when the query completes.
type Timer struct {
	monitor   *Monitor
	queryType string
	startedAt time.Time
}

// Start begins timing a query of the given type.
func (m *Monitor) Start(queryType string) *Timer {
	return &Timer{monitor: m, queryType: queryType, startedAt: time.Now()}
}

// Stop records the elapsed duration and outcome flags, incrementing the
// slow-query counter when the duration exceeds SlowQueryThreshold.
func (t *Timer) Stop(cached, failed bool) {
	elapsed := time.Since(t.startedAt)
	t.monitor.record(t.queryType, elapsed, cached, failed)
}

func (m *Monitor) record(queryType string, elapsed time.Duration, cached, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics := m.metrics[queryType]
	metrics.TotalCount++
	metrics.CumulativeDur += elapsed
	if elapsed > SlowQueryThreshold {
		metrics.SlowCount++
	}
	if cached {
		metrics.CachedCount++
	}
	if failed {
		metrics.FailureCount++
	}
	m.metrics[queryType] = metrics
}

// Snapshot returns a copy of all query-type metrics.
func (m *Monitor) Snapshot() map[string]QueryMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]QueryMetrics, len(m.metrics))
	for k, v := range m.metrics {
		out[k] = v
	}
	return out
}
