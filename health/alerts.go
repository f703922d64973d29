package health

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Thresholds configure when CheckAll fires an alert.
type Thresholds struct {
	MaxMemoryBytes       uint64
	MaxCPUPct            float64
	MinSensorSuccessRate float64
	MinStorageSuccessRate float64
}

// Notifier sends a systemd-style readiness/status notification; absent
// systemd, implementations are expected to be no-ops (see SystemdNotifier).
type Notifier interface {
	Notify(state string) error
}

// alertTracker enforces a per-alert-type cooldown before re-firing.
type alertTracker struct {
	mu       sync.Mutex
	cooldown time.Duration
	lastFire map[string]time.Time
}

func newAlertTracker(cooldown time.Duration) *alertTracker {
	return &alertTracker{cooldown: cooldown, lastFire: make(map[string]time.Time)}
}

// allow reports whether alertType may fire now, and if so marks it fired.
func (a *alertTracker) allow(alertType string, now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if last, ok := a.lastFire[alertType]; ok && now.Sub(last) < a.cooldown {
		return false
	}
	a.lastFire[alertType] = now
	return true
}

const (
	alertMemory       = "memory_exceeded"
	alertCPU          = "cpu_exceeded"
	alertSensorRate   = "sensor_success_rate_low"
	alertStorageRate  = "storage_success_rate_low"
	alertOverallBad   = "overall_status_critical"
)

func (m *Monitor) evaluateAlerts(ctx context.Context, status SystemStatus) {
	now := time.Now().UTC()

	check := func(alertType string, fire bool, msg string) {
		if !fire {
			return
		}
		if !m.alerts.allow(alertType, now) {
			return
		}
		m.fireAlert(ctx, alertType, msg)
	}

	if m.thresholds.MaxMemoryBytes > 0 {
		check(alertMemory, status.Perf.RSSBytes > m.thresholds.MaxMemoryBytes,
			fmt.Sprintf("memory usage %d bytes exceeds threshold %d", status.Perf.RSSBytes, m.thresholds.MaxMemoryBytes))
	}
	if m.thresholds.MaxCPUPct > 0 {
		check(alertCPU, status.Perf.CPUPct > m.thresholds.MaxCPUPct,
			fmt.Sprintf("cpu usage %.1f%% exceeds threshold %.1f%%", status.Perf.CPUPct, m.thresholds.MaxCPUPct))
	}
	if m.thresholds.MinSensorSuccessRate > 0 {
		check(alertSensorRate, status.Perf.SensorSuccessRate() < m.thresholds.MinSensorSuccessRate,
			fmt.Sprintf("sensor success rate %.2f below threshold %.2f", status.Perf.SensorSuccessRate(), m.thresholds.MinSensorSuccessRate))
	}
	if m.thresholds.MinStorageSuccessRate > 0 {
		check(alertStorageRate, status.Perf.StorageSuccessRate() < m.thresholds.MinStorageSuccessRate,
			fmt.Sprintf("storage success rate %.2f below threshold %.2f", status.Perf.StorageSuccessRate(), m.thresholds.MinStorageSuccessRate))
	}
	check(alertOverallBad, status.Overall == Critical || status.Overall == Failed,
		fmt.Sprintf("overall system status is %s", status.Overall))
}

func (m *Monitor) fireAlert(ctx context.Context, alertType, msg string) {
	m.logger.Warn("health alert", "type", alertType, "message", msg)
	m.events.push(Event{Instant: time.Now().UTC(), Kind: "alert", Message: fmt.Sprintf("%s: %s", alertType, msg)})
	if m.notifier != nil {
		_ = m.notifier.Notify(fmt.Sprintf("STATUS=%s", msg))
	}
}
