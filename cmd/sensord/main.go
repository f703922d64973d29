// Command sensord runs the acquisition, storage and query daemon: it reads
// an SCD40 sensor on a fixed interval, persists readings to the time-series
// store, and serves the HTTP query surface, until SIGTERM/SIGINT.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/sensord/adapter"
	"github.com/mklimuk/sensord/cache"
	"github.com/mklimuk/sensord/console"
	"github.com/mklimuk/sensord/daemon"
	"github.com/mklimuk/sensord/gpio"
	"github.com/mklimuk/sensord/health"
	"github.com/mklimuk/sensord/httpapi"
	"github.com/mklimuk/sensord/internal/config"
	"github.com/mklimuk/sensord/internal/logging"
	"github.com/mklimuk/sensord/internal/shutdown"
	"github.com/mklimuk/sensord/store"
	"github.com/mklimuk/sensord/transport"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "sensord",
		Usage:   "SCD40 acquisition, storage and query daemon",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "/etc/sensord/sensord.toml",
				Usage:   "path to the TOML configuration file",
			},
			&cli.BoolFlag{
				Name:    "foreground",
				Aliases: []string{"f"},
				Usage:   "log to stdout instead of stderr; sensord does not fork in either mode",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		if ec, ok := err.(cli.ExitCoder); ok {
			console.Error(ec.Error())
			os.Exit(ec.ExitCode())
		}
		console.Error(err.Error())
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return console.Exit(1, "configuration error: %s", err)
	}

	var out *os.File = os.Stdout
	if !c.Bool("foreground") {
		out = os.Stderr
	}
	logger := logging.New(logging.Config{Level: cfg.Daemon.LogLevel, Output: out})
	slog.SetDefault(logger)

	coord, ctx := shutdown.New(context.Background())

	st, err := store.Open(store.Config{
		Dir:           cfg.Storage.DataDir,
		RetentionSecs: int64(cfg.Storage.RetentionHours) * 3600,
	})
	if err != nil {
		return console.Exit(1, "store initialization error: %s", err)
	}

	trans, err := buildTransport(cfg)
	if err != nil {
		logger.Error("transport initialization error, continuing: will retry from the control loop", "err", err)
	}

	monitor := health.New(logger, health.Thresholds{
		MaxMemoryBytes:        uint64(cfg.Alerts.MaxMemoryMB) * 1024 * 1024,
		MaxCPUPct:             cfg.Alerts.MaxCPUPct,
		MinSensorSuccessRate:  cfg.Alerts.MinSensorSuccessRate,
		MinStorageSuccessRate: cfg.Alerts.MinStorageSuccessRate,
	})
	registerChecks(monitor, st, cfg)

	if cfg.Monitoring.StatusLEDEnabled {
		bus, err := transport.NewPeriphBus(cfg.Sensor.DevicePath)
		if err != nil {
			logger.Warn("status led bus open failed, continuing without it", "err", err)
		} else {
			driver := gpio.NewMCP23017(bus, byte(cfg.Monitoring.StatusLEDAddress))
			led, err := health.NewStatusLED(ctx, driver, logger)
			if err != nil {
				logger.Warn("status led init failed, continuing without it", "err", err)
			} else {
				monitor.AttachStatusLED(led)
			}
		}
	}

	if cfg.Monitoring.SystemdEnabled {
		monitor.SetNotifier(health.SystemdNotifier{})
	}

	if cfg.Monitoring.StatusFilePath != "" {
		interval := time.Duration(cfg.Monitoring.StatusFileIntervalSecs) * time.Second
		if interval <= 0 {
			interval = 30 * time.Second
		}
		go health.RunStatusFileWriter(ctx, monitor, cfg.Monitoring.StatusFilePath, interval, logger)
	}

	queryCache := cache.New(cache.DefaultCapacity, cache.DefaultMaxAge)
	perfMonitor := cache.NewMonitor()
	httpServer := httpapi.New(httpapi.Config{Addr: cfg.HTTP.ListenAddr}, st, queryCache, perfMonitor, monitor, logger)

	d := daemon.New(cfg, logger, trans, st, httpServer, monitor, coord, queryCache)

	logger.Info("sensord starting", "version", version, "listen_addr", cfg.HTTP.ListenAddr, "data_dir", cfg.Storage.DataDir)
	if err := d.Run(ctx); err != nil {
		return console.Exit(1, "daemon exited with error: %s", err)
	}
	return nil
}

// buildTransport constructs the I2C transport for cfg.Sensor.Adapter. A
// non-nil error is non-fatal at startup: the control loop's per-tick
// reconnect logic will keep retrying.
func buildTransport(cfg config.Config) (*transport.SCD40Transport, error) {
	tcfg := transport.Config{
		DevicePath:        cfg.Sensor.DevicePath,
		Address:           byte(cfg.Sensor.Address),
		ConnectionTimeout: time.Duration(cfg.Sensor.ConnectionTimeoutMs) * time.Millisecond,
		MaxRetries:        cfg.Sensor.MaxRetries,
	}

	switch cfg.Sensor.Adapter {
	case "mcp2221":
		tcfg.OpenBus = func(string) (transport.I2CBus, error) {
			a := adapter.NewMCP2221()
			if err := a.Init(); err != nil {
				return nil, fmt.Errorf("mcp2221 init: %w", err)
			}
			return a, nil
		}
	case "native":
		// tcfg.OpenBus left nil: Config.withDefaults opens a PeriphBus.
	default:
		return nil, fmt.Errorf("unknown sensor adapter %q", cfg.Sensor.Adapter)
	}

	t := transport.New(tcfg)
	ctx, cancel := context.WithTimeout(context.Background(), tcfg.ConnectionTimeout)
	defer cancel()
	if err := t.Initialize(ctx); err != nil {
		return t, err
	}
	return t, nil
}

func registerChecks(m *health.Monitor, st *store.Store, cfg config.Config) {
	m.RegisterCheck("memory", health.MemoryCheck(
		uint64(cfg.Alerts.MaxMemoryMB)*1024*1024*3/4,
		uint64(cfg.Alerts.MaxMemoryMB)*1024*1024,
	))
	m.RegisterCheck("disk_space", health.DiskSpaceCheck(cfg.Storage.DataDir, 100*1024*1024))
	m.RegisterCheck("cpu", health.CPUUsageCheck(cfg.Alerts.MaxCPUPct))
	m.RegisterCheck("sensor_success_rate", health.SensorSuccessRateCheck(m, cfg.Alerts.MinSensorSuccessRate))
	m.RegisterCheck("storage_success_rate", health.StorageSuccessRateCheck(m, cfg.Alerts.MinStorageSuccessRate))
	m.RegisterCheck("store", health.HealthyFunc("store", st.Health))
}
