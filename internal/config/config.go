// Package config loads and validates sensord's TOML configuration file,
// one struct per table, using github.com/BurntSushi/toml.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the root of the TOML configuration file.
type Config struct {
	Daemon     DaemonConfig     `toml:"daemon"`
	Sensor     SensorConfig     `toml:"sensor"`
	Storage    StorageConfig    `toml:"storage"`
	HTTP       HTTPConfig       `toml:"http"`
	Alerts     AlertsConfig     `toml:"alerts"`
	Monitoring MonitoringConfig `toml:"monitoring"`
}

// DaemonConfig controls the control loop's pacing and paths.
type DaemonConfig struct {
	SamplingIntervalSecs int    `toml:"sampling_interval_secs"`
	PidFile              string `toml:"pid_file"`
	LogLevel             string `toml:"log_level"`
}

// SensorConfig selects and configures the I2C transport.
type SensorConfig struct {
	Adapter           string `toml:"adapter"` // "native" | "mcp2221"
	DevicePath        string `toml:"device_path"`
	Address           int    `toml:"address"`
	MaxRetries        int    `toml:"max_retries"`
	ConnectionTimeoutMs int  `toml:"connection_timeout_ms"`
}

// StorageConfig controls the time-series store.
type StorageConfig struct {
	DataDir           string `toml:"data_dir"`
	RetentionHours    int    `toml:"retention_hours"`
}

// HTTPConfig controls the query surface's listener.
type HTTPConfig struct {
	ListenAddr string `toml:"listen_addr"`
}

// AlertsConfig controls the health monitor's alert thresholds.
// CooldownMinutes is parsed but not passed to the monitor, whose per-type
// alert cooldown is fixed at 15 minutes.
type AlertsConfig struct {
	MaxMemoryMB           int     `toml:"max_memory_mb"`
	MaxCPUPct             float64 `toml:"max_cpu_pct"`
	MinSensorSuccessRate  float64 `toml:"min_sensor_success_rate"`
	MinStorageSuccessRate float64 `toml:"min_storage_success_rate"`
	CooldownMinutes       int     `toml:"cooldown_minutes"`
}

// MonitoringConfig controls optional status file/LED/systemd integration.
type MonitoringConfig struct {
	StatusFilePath      string `toml:"status_file_path"`
	StatusFileIntervalSecs int `toml:"status_file_interval_secs"`
	StatusLEDEnabled    bool   `toml:"status_led_enabled"`
	StatusLEDAddress    int    `toml:"status_led_address"`
	SystemdEnabled      bool   `toml:"systemd_enabled"`
}

// Default returns a Config with every field set to its documented default.
func Default() Config {
	return Config{
		Daemon: DaemonConfig{
			SamplingIntervalSecs: 30,
			LogLevel:             "info",
		},
		Sensor: SensorConfig{
			Adapter:             "native",
			DevicePath:          "/dev/i2c-1",
			Address:             0x62,
			MaxRetries:          3,
			ConnectionTimeoutMs: 1000,
		},
		Storage: StorageConfig{
			DataDir:        "/var/lib/sensord",
			RetentionHours: 24 * 90,
		},
		HTTP: HTTPConfig{
			ListenAddr: "127.0.0.1:8080",
		},
		Alerts: AlertsConfig{
			MaxMemoryMB:           256,
			MaxCPUPct:             80,
			MinSensorSuccessRate:  0.9,
			MinStorageSuccessRate: 0.99,
			CooldownMinutes:       15,
		},
	}
}

// Load reads and parses the TOML file at path, filling in defaults for any
// absent fields, then validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return cfg, nil
}

// Validate enforces the constraints spec.md names across §4/§6; failure is
// fatal at daemon startup per §7.
func (c Config) Validate() error {
	var errs []string

	if c.Daemon.SamplingIntervalSecs <= 0 {
		errs = append(errs, "daemon.sampling_interval_secs must be positive")
	}
	switch c.Sensor.Adapter {
	case "native", "mcp2221":
	default:
		errs = append(errs, `sensor.adapter must be "native" or "mcp2221"`)
	}
	if c.Sensor.DevicePath == "" && c.Sensor.Adapter == "native" {
		errs = append(errs, "sensor.device_path is required for the native adapter")
	}
	if c.Sensor.Address <= 0 || c.Sensor.Address > 0x7F {
		errs = append(errs, "sensor.address must be a valid 7-bit I2C address")
	}
	if c.Sensor.MaxRetries < 0 {
		errs = append(errs, "sensor.max_retries must not be negative")
	}
	if c.Storage.DataDir == "" {
		errs = append(errs, "storage.data_dir is required")
	}
	if c.Storage.RetentionHours <= 0 {
		errs = append(errs, "storage.retention_hours must be positive")
	}
	if c.HTTP.ListenAddr == "" {
		errs = append(errs, "http.listen_addr is required")
	}
	if c.Alerts.MinSensorSuccessRate < 0 || c.Alerts.MinSensorSuccessRate > 1 {
		errs = append(errs, "alerts.min_sensor_success_rate must be within [0,1]")
	}
	if c.Alerts.MinStorageSuccessRate < 0 || c.Alerts.MinStorageSuccessRate > 1 {
		errs = append(errs, "alerts.min_storage_success_rate must be within [0,1]")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
