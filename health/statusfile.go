package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

type statusFileDoc struct {
	Overall   string                 `json:"overall_status"`
	LastCheck time.Time              `json:"last_check"`
	Checks    map[string]checkFileDoc `json:"checks"`
	Perf      perfFileDoc            `json:"performance"`
}

type checkFileDoc struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type perfFileDoc struct {
	SensorSuccessRate  float64 `json:"sensor_success_rate"`
	StorageSuccessRate float64 `json:"storage_success_rate"`
	UptimeSeconds      float64 `json:"uptime_seconds"`
}

// WriteStatusFile serializes status to path atomically (write to a temp
// file in the same directory, then rename) for external pollers.
func WriteStatusFile(path string, status SystemStatus) error {
	doc := statusFileDoc{
		Overall:   status.Overall.String(),
		LastCheck: status.LastCheck,
		Checks:    make(map[string]checkFileDoc, len(status.ComponentResults)),
		Perf: perfFileDoc{
			SensorSuccessRate:  status.Perf.SensorSuccessRate(),
			StorageSuccessRate: status.Perf.StorageSuccessRate(),
			UptimeSeconds:      status.Perf.Uptime().Seconds(),
		},
	}
	for _, c := range status.ComponentResults {
		doc.Checks[c.ComponentName] = checkFileDoc{Status: c.Status.String(), Message: c.Message}
	}

	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status file: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return fmt.Errorf("write status file temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename status file: %w", err)
	}
	return nil
}

// RunStatusFileWriter periodically writes the monitor's status to path
// until ctx is cancelled. Errors are logged, not fatal.
func RunStatusFileWriter(ctx context.Context, m *Monitor, path string, interval time.Duration, logger *slog.Logger) {
	if path == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logger.Warn("could not create status file directory", "path", path, "err", err)
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := m.CheckAll(ctx)
			if err := WriteStatusFile(path, status); err != nil {
				logger.Warn("could not write status file", "err", err)
			}
		}
	}
}
