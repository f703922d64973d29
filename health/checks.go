package health

import (
	"context"
	"fmt"
	"runtime"
	"syscall"
	"time"
)

// MemoryCheck reports WARNING above warnBytes and CRITICAL above critBytes
// of resident process memory (approximated via runtime.MemStats.Sys, which
// tracks memory obtained from the OS).
func MemoryCheck(warnBytes, critBytes uint64) CheckFunc {
	return func(ctx context.Context) CheckResult {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)

		status := Healthy
		switch {
		case ms.Sys > critBytes:
			status = Critical
		case ms.Sys > warnBytes:
			status = Warning
		}
		return CheckResult{
			Status:  status,
			Message: fmt.Sprintf("resident memory %d bytes", ms.Sys),
			Instant: time.Now().UTC(),
			Detail:  map[string]string{"bytes": fmt.Sprintf("%d", ms.Sys)},
		}
	}
}

// DiskSpaceCheck reports CRITICAL when free space at path drops below
// minFreeBytes.
func DiskSpaceCheck(path string, minFreeBytes uint64) CheckFunc {
	return func(ctx context.Context) CheckResult {
		var stat syscall.Statfs_t
		if err := syscall.Statfs(path, &stat); err != nil {
			return CheckResult{Status: Failed, Message: fmt.Sprintf("statfs failed: %v", err), Instant: time.Now().UTC()}
		}
		free := stat.Bavail * uint64(stat.Bsize)
		status := Healthy
		if free < minFreeBytes {
			status = Critical
		}
		return CheckResult{
			Status:  status,
			Message: fmt.Sprintf("%d bytes free at %s", free, path),
			Instant: time.Now().UTC(),
			Detail:  map[string]string{"free_bytes": fmt.Sprintf("%d", free)},
		}
	}
}

// SensorSuccessRateCheck reports WARNING when the monitor's sensor success
// rate falls below minRate.
func SensorSuccessRateCheck(m *Monitor, minRate float64) CheckFunc {
	return func(ctx context.Context) CheckResult {
		rate := m.PerformanceMetrics().SensorSuccessRate()
		status := Healthy
		if rate < minRate {
			status = Warning
		}
		return CheckResult{
			Status:  status,
			Message: fmt.Sprintf("sensor success rate %.2f", rate),
			Instant: time.Now().UTC(),
		}
	}
}

// StorageSuccessRateCheck reports WARNING when the monitor's storage
// success rate falls below minRate.
func StorageSuccessRateCheck(m *Monitor, minRate float64) CheckFunc {
	return func(ctx context.Context) CheckResult {
		rate := m.PerformanceMetrics().StorageSuccessRate()
		status := Healthy
		if rate < minRate {
			status = Warning
		}
		return CheckResult{
			Status:  status,
			Message: fmt.Sprintf("storage success rate %.2f", rate),
			Instant: time.Now().UTC(),
		}
	}
}

// CPUUsageCheck reports WARNING above warnPct of a single core's capacity,
// computed from the process's cumulative CPU time delta between successive
// calls (via getrusage), divided by wall-clock delta.
func CPUUsageCheck(warnPct float64) CheckFunc {
	var lastCPU time.Duration
	var lastWall time.Time

	return func(ctx context.Context) CheckResult {
		var ru syscall.Rusage
		if err := syscall.Getrusage(syscall.RUSAGE_SELF, &ru); err != nil {
			return CheckResult{Status: Failed, Message: fmt.Sprintf("getrusage failed: %v", err), Instant: time.Now().UTC()}
		}
		cpu := time.Duration(ru.Utime.Nano() + ru.Stime.Nano())
		now := time.Now().UTC()

		var pct float64
		if !lastWall.IsZero() {
			wallDelta := now.Sub(lastWall)
			cpuDelta := cpu - lastCPU
			if wallDelta > 0 {
				pct = 100 * float64(cpuDelta) / float64(wallDelta)
			}
		}
		lastCPU, lastWall = cpu, now

		status := Healthy
		if pct > warnPct {
			status = Warning
		}
		return CheckResult{
			Status:  status,
			Message: fmt.Sprintf("cpu usage %.1f%%", pct),
			Instant: now,
			Detail:  map[string]string{"cpu_pct": fmt.Sprintf("%.2f", pct)},
		}
	}
}

// HealthyFunc wraps a simple bool-returning health probe (e.g.
// store.Health) into a CheckFunc.
func HealthyFunc(name string, probe func(ctx context.Context) bool) CheckFunc {
	return func(ctx context.Context) CheckResult {
		if probe(ctx) {
			return CheckResult{Status: Healthy, Message: name + " ok", Instant: time.Now().UTC()}
		}
		return CheckResult{Status: Critical, Message: name + " unhealthy", Instant: time.Now().UTC()}
	}
}
