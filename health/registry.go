package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc performs one named health check. Panics inside a CheckFunc are
// recovered by CheckAll and reported as Failed.
type CheckFunc func(ctx context.Context) CheckResult

// Monitor is the registry of named checks plus the performance counters,
// alerting, and event history that the HTTP diagnostic surface and the
// optional status LED read from.
type Monitor struct {
	mu     sync.RWMutex
	checks map[string]CheckFunc

	sensorSuccesses, sensorFailures             atomic.Uint64
	storageSuccesses, storageFailures           atomic.Uint64
	i2cConnectionFailures                       atomic.Uint64

	gaugeMu   sync.Mutex
	rssBytes  uint64
	cpuPct    float64
	startTime time.Time

	events *ring
	perf   *perfHistory

	alerts     *alertTracker
	thresholds Thresholds
	notifier   Notifier
	logger     *slog.Logger

	led *StatusLED
}

// New constructs a Monitor. startTime is recorded for Uptime.
func New(logger *slog.Logger, thresholds Thresholds) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		checks:     make(map[string]CheckFunc),
		events:     newRing(100),
		perf:       newPerfHistory(24*time.Hour, 1000),
		alerts:     newAlertTracker(15 * time.Minute),
		thresholds: thresholds,
		logger:     logger,
		startTime:  time.Now().UTC(),
	}
}

// SetNotifier wires an optional systemd readiness/status notifier; nil
// leaves alerting a pure logging/event-history operation.
func (m *Monitor) SetNotifier(n Notifier) { m.notifier = n }

// AttachStatusLED wires a physical health indicator into the monitor; safe
// to call with nil to leave it disabled.
func (m *Monitor) AttachStatusLED(led *StatusLED) { m.led = led }

// RegisterCheck adds or replaces a named check.
func (m *Monitor) RegisterCheck(name string, fn CheckFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = fn
}

// CheckAll runs every registered check, recovering panics as Failed results,
// and returns the rolled-up SystemStatus. Empty registry rolls up to
// Warning.
func (m *Monitor) CheckAll(ctx context.Context) SystemStatus {
	m.mu.RLock()
	names := make([]string, 0, len(m.checks))
	fns := make([]CheckFunc, 0, len(m.checks))
	for name, fn := range m.checks {
		names = append(names, name)
		fns = append(fns, fn)
	}
	m.mu.RUnlock()

	now := time.Now().UTC()
	results := make([]CheckResult, 0, len(names))
	overall := Warning
	if len(names) > 0 {
		overall = Healthy
	}

	for i, name := range names {
		result := m.runOne(ctx, name, fns[i])
		results = append(results, result)
		overall = worse(overall, result.Status)
		m.events.push(Event{Instant: now, Kind: "check", Message: fmt.Sprintf("%s: %s", name, result.Status)})
	}

	status := SystemStatus{
		Overall:          overall,
		LastCheck:        now,
		ComponentResults: results,
		Perf:             m.PerformanceMetrics(),
	}

	m.evaluateAlerts(ctx, status)

	if m.led != nil {
		m.led.SetHealthy(ctx, overall == Healthy || overall == Warning)
	}

	return status
}

func (m *Monitor) runOne(ctx context.Context, name string, fn CheckFunc) (result CheckResult) {
	defer func() {
		if r := recover(); r != nil {
			result = CheckResult{
				ComponentName: name,
				Status:        Failed,
				Message:       fmt.Sprintf("panic: %v", r),
				Instant:       time.Now().UTC(),
			}
		}
	}()
	result = fn(ctx)
	result.ComponentName = name
	return result
}

// RecordSensorRead updates the sensor success/failure counters.
func (m *Monitor) RecordSensorRead(success bool) {
	if success {
		m.sensorSuccesses.Add(1)
	} else {
		m.sensorFailures.Add(1)
	}
	m.perf.record("sensor", success)
}

// RecordStorageWrite updates the storage success/failure counters.
func (m *Monitor) RecordStorageWrite(success bool) {
	if success {
		m.storageSuccesses.Add(1)
	} else {
		m.storageFailures.Add(1)
	}
	m.perf.record("storage", success)
}

// RecordI2CConnectionFailure increments the connection-failure counter.
func (m *Monitor) RecordI2CConnectionFailure() {
	m.i2cConnectionFailures.Add(1)
	m.perf.record("i2c", false)
}

// UpdateGauges sets the periodic RSS/CPU gauges (called every 5 minutes by
// the daemon loop per the spec's cadence).
func (m *Monitor) UpdateGauges(rssBytes uint64, cpuPct float64) {
	m.gaugeMu.Lock()
	defer m.gaugeMu.Unlock()
	m.rssBytes = rssBytes
	m.cpuPct = cpuPct
}

// PerformanceMetrics returns a snapshot of all counters and gauges.
func (m *Monitor) PerformanceMetrics() PerformanceMetrics {
	m.gaugeMu.Lock()
	rss, cpu := m.rssBytes, m.cpuPct
	m.gaugeMu.Unlock()

	return PerformanceMetrics{
		SensorSuccesses:       m.sensorSuccesses.Load(),
		SensorFailures:        m.sensorFailures.Load(),
		StorageSuccesses:      m.storageSuccesses.Load(),
		StorageFailures:       m.storageFailures.Load(),
		I2CConnectionFailures: m.i2cConnectionFailures.Load(),
		RSSBytes:              rss,
		CPUPct:                cpu,
		StartTime:             m.startTime,
	}
}

// Events returns the health event ring buffer, oldest first.
func (m *Monitor) Events() []Event { return m.events.snapshot() }
