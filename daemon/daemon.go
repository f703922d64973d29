// Package daemon implements the control loop that paces acquisition,
// persists successful readings, maintains health/metrics, and coordinates
// graceful shutdown: initialization order, per-tick sensor cycle, and
// shutdown sequencing described in spec.md §4.8.
package daemon

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/mklimuk/sensord/cache"
	"github.com/mklimuk/sensord/health"
	"github.com/mklimuk/sensord/httpapi"
	"github.com/mklimuk/sensord/internal/config"
	"github.com/mklimuk/sensord/internal/shutdown"
	"github.com/mklimuk/sensord/record"
	"github.com/mklimuk/sensord/store"
	"github.com/mklimuk/sensord/transport"
)

const (
	tickSleepIncrement = 100 * time.Millisecond
	gaugeUpdateInterval = 5 * time.Minute
	hardMemoryLimitBytes = 10 * 1024 * 1024
)

// Transport is the subset of transport.SCD40Transport the control loop
// depends on.
type Transport interface {
	Initialize(ctx context.Context) error
	ReadSensor(ctx context.Context) (record.Reading, error)
	IsConnected() bool
	Shutdown(ctx context.Context)
}

// Storer is the subset of store.Store the control loop writes through.
type Storer interface {
	Put(ctx context.Context, r record.Reading) error
	Close() error
}

// Daemon wires the acquisition loop, the store, the HTTP query surface, and
// the health monitor together.
type Daemon struct {
	cfg        config.Config
	logger     *slog.Logger
	transport  Transport
	store      Storer
	httpServer *httpapi.Server
	monitor    *health.Monitor
	coord      *shutdown.Coordinator
	notifier   health.SystemdNotifier
	queryCache *cache.Cache

	samplingInterval time.Duration
}

// New assembles a Daemon from already-constructed components; callers
// build the transport/store/http server from cfg per the initialization
// order in cmd/sensord/main.go.
func New(cfg config.Config, logger *slog.Logger, t Transport, s Storer, httpServer *httpapi.Server, monitor *health.Monitor, coord *shutdown.Coordinator, queryCache *cache.Cache) *Daemon {
	return &Daemon{
		cfg:              cfg,
		logger:           logger,
		transport:        t,
		store:            s,
		httpServer:       httpServer,
		monitor:          monitor,
		coord:            coord,
		queryCache:       queryCache,
		samplingInterval: time.Duration(cfg.Daemon.SamplingIntervalSecs) * time.Second,
	}
}

// Run executes the main loop until ctx is cancelled or shutdown is
// requested, then performs the shutdown sequence.
func (d *Daemon) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := d.httpServer.ListenAndServe(); err != nil {
			d.logger.Error("http server stopped unexpectedly", "err", err)
			d.coord.Request()
		}
	}()

	if err := d.notifier.NotifyReady(); err != nil {
		d.logger.Debug("systemd notify ready failed (likely not running under systemd)", "err", err)
	}

	lastGaugeUpdate := time.Time{}

	for {
		if d.coord.Requested() || ctx.Err() != nil {
			break
		}

		d.runHealthCheck(ctx)
		d.runSensorCycle(ctx)

		if time.Since(lastGaugeUpdate) >= gaugeUpdateInterval {
			d.updateGauges()
			lastGaugeUpdate = time.Now()
		}

		if err := d.notifier.NotifyWatchdog(); err != nil {
			d.logger.Debug("systemd watchdog notify failed", "err", err)
		}

		d.sleepUntilNextTick(ctx)
	}

	d.logger.Info("shutdown requested, stopping control loop")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := d.httpServer.Shutdown(shutdownCtx); err != nil {
		d.logger.Warn("http server shutdown error", "err", err)
	}
	wg.Wait()

	d.transport.Shutdown(shutdownCtx)

	if err := d.store.Close(); err != nil {
		d.logger.Warn("store close error", "err", err)
	}

	if err := d.notifier.NotifyStopping(); err != nil {
		d.logger.Debug("systemd notify stopping failed", "err", err)
	}

	return nil
}

func (d *Daemon) runHealthCheck(ctx context.Context) {
	status := d.monitor.CheckAll(ctx)
	if status.Perf.RSSBytes > hardMemoryLimitBytes {
		d.logger.Warn("memory usage exceeds hard limit", "rss_bytes", status.Perf.RSSBytes)
	}
	if status.Overall != health.Healthy {
		d.logger.Info("system health degraded", "overall", status.Overall.String())
	}
}

func (d *Daemon) runSensorCycle(ctx context.Context) bool {
	if !d.transport.IsConnected() {
		if err := d.transport.Initialize(ctx); err != nil {
			d.monitor.RecordI2CConnectionFailure()
			d.logger.Debug("transport reinitialize failed", "err", err)
			return false
		}
	}

	reading, err := d.transport.ReadSensor(ctx)
	if err != nil {
		d.monitor.RecordSensorRead(false)
		d.logger.Debug("sensor read failed", "err", err)
		return false
	}

	if !reading.HasAny() {
		d.monitor.RecordSensorRead(false)
		return false
	}
	d.monitor.RecordSensorRead(true)

	if err := d.store.Put(ctx, reading); err != nil {
		d.monitor.RecordStorageWrite(false)
		d.logger.Warn("store put failed", "err", err)
		return false
	}
	d.monitor.RecordStorageWrite(true)
	if d.queryCache != nil {
		d.queryCache.Invalidate()
	}
	return true
}

func (d *Daemon) updateGauges() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	var ru syscall.Rusage
	var cpuPct float64
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &ru); err == nil {
		// Coarse CPU%: total CPU seconds consumed over process uptime so
		// far; health.CPUUsageCheck computes the finer delta-based
		// figure used for alerting.
		total := time.Duration(ru.Utime.Nano() + ru.Stime.Nano())
		if uptime := d.monitor.PerformanceMetrics().Uptime(); uptime > 0 {
			cpuPct = 100 * float64(total) / float64(uptime)
		}
	}

	d.monitor.UpdateGauges(ms.Sys, cpuPct)
}

// sleepUntilNextTick sleeps in 100 ms increments, checking the shutdown
// flag between increments so shutdown latency stays bounded.
func (d *Daemon) sleepUntilNextTick(ctx context.Context) {
	remaining := d.samplingInterval
	for remaining > 0 {
		if d.coord.Requested() || ctx.Err() != nil {
			return
		}
		step := tickSleepIncrement
		if step > remaining {
			step = remaining
		}
		time.Sleep(step)
		remaining -= step
	}
}

var _ Transport = (*transport.SCD40Transport)(nil)
var _ Storer = (*store.Store)(nil)
