package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mklimuk/sensord/codec"
	"github.com/mklimuk/sensord/record"
)

// Kind classifies a transport failure for retry/propagation decisions, per
// the failure taxonomy in the acquisition spec: connection errors are not
// retried inside a single read_sensor call, frame and validation errors are.
type Kind int

const (
	KindConnection Kind = iota
	KindFrame
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindFrame:
		return "frame"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error wraps a transport failure with its Kind so callers (the daemon
// control loop) can decide whether to count it as a connection failure or a
// read failure without string matching.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("transport: %s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// BusOpener constructs the concrete I2CBus backend for a device path. The
// default is NewPeriphBus; tests substitute a fake bus by injecting a
// different BusOpener.
type BusOpener func(devicePath string) (I2CBus, error)

// Config configures a SCD40Transport.
type Config struct {
	DevicePath        string
	Address           byte // 7-bit slave address, default codec.DefaultAddress
	ConnectionTimeout time.Duration
	MaxRetries        int
	OpenBus           BusOpener // defaults to opening a PeriphBus
}

func (c Config) withDefaults() Config {
	if c.Address == 0 {
		c.Address = codec.DefaultAddress
	}
	if c.ConnectionTimeout <= 0 {
		c.ConnectionTimeout = 1 * time.Second
	}
	if c.ConnectionTimeout > 10*time.Second {
		c.ConnectionTimeout = 10 * time.Second
	}
	if c.ConnectionTimeout < 100*time.Millisecond {
		c.ConnectionTimeout = 100 * time.Millisecond
	}
	if c.OpenBus == nil {
		c.OpenBus = func(dev string) (I2CBus, error) { return NewPeriphBus(dev) }
	}
	return c
}

// Stats are the transport's cumulative read counters, returned by
// SCD40Transport.Stats.
type Stats struct {
	SuccessfulReads       uint64
	FailedReads           uint64
	ReconnectionAttempts  uint64
	LastSuccessTime       time.Time
	LastAttemptTime       time.Time
}

// SCD40Transport drives the SCD40 over a pluggable I2CBus: open, address,
// read/retry/backoff, reconnect. All access to the bus handle is serialized
// by fdMu; connected is readable lock-free via an atomic flag; stats has its
// own lock so readers (health checks) never contend with the acquisition
// path's hot loop.
type SCD40Transport struct {
	cfg Config

	fdMu      sync.Mutex
	bus       I2CBus
	connected atomic.Bool

	errMu    sync.Mutex
	lastErr  string

	statsMu sync.Mutex
	stats   Stats
}

func New(cfg Config) *SCD40Transport {
	return &SCD40Transport{cfg: cfg.withDefaults()}
}

// Initialize opens the bus, sets the slave address implicitly via
// per-transaction addressing, stops any prior periodic measurement, and
// starts a fresh one. It is safe to call again after a failure.
func (t *SCD40Transport) Initialize(ctx context.Context) error {
	t.fdMu.Lock()
	defer t.fdMu.Unlock()

	if t.bus != nil {
		_ = t.closeLocked()
	}

	bus, err := t.cfg.OpenBus(t.cfg.DevicePath)
	if err != nil {
		t.setLastErr(err)
		return &Error{Kind: KindConnection, Err: err}
	}
	t.bus = bus

	// Best-effort stop of any measurement the sensor may already be running,
	// then start a fresh periodic cycle.
	_ = t.sendCommandLocked(ctx, codec.CmdStopPeriodic)
	time.Sleep(1 * time.Millisecond)
	if err := t.sendCommandLocked(ctx, codec.CmdStartPeriodic); err != nil {
		t.setLastErr(err)
		_ = t.closeLocked()
		return &Error{Kind: KindConnection, Err: err}
	}

	t.connected.Store(true)
	return nil
}

// IsConnected is lock-free so the health monitor and the acquisition loop
// never contend over it.
func (t *SCD40Transport) IsConnected() bool { return t.connected.Load() }

// LastError returns the most recent failure's message, or "" if none.
func (t *SCD40Transport) LastError() string {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	return t.lastErr
}

func (t *SCD40Transport) setLastErr(err error) {
	t.errMu.Lock()
	t.lastErr = err.Error()
	t.errMu.Unlock()
}

// Stats returns a snapshot of cumulative transport counters.
func (t *SCD40Transport) Stats() Stats {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	return t.stats
}

// ReadSensor performs one measurement cycle, retrying up to MaxRetries+1
// times with reconnection and exponential backoff between attempts.
func (t *SCD40Transport) ReadSensor(ctx context.Context) (record.Reading, error) {
	if !t.IsConnected() {
		err := &Error{Kind: KindConnection, Err: fmt.Errorf("transport not connected")}
		t.recordAttempt(false)
		return record.Reading{}, err
	}

	var lastErr error
	attempts := t.cfg.MaxRetries + 1
	for n := 1; n <= attempts; n++ {
		reading, err := t.attemptRead(ctx)
		if err == nil {
			t.recordAttempt(true)
			return reading, nil
		}
		lastErr = err
		t.setLastErr(err)
		slog.Debug("scd40 read attempt failed", "attempt", n, "err", err)

		// A connection error (bus not open after a failed reconnect) ends
		// the cycle; only frame and validation errors are retried.
		if te, ok := err.(*Error); ok && te.Kind == KindConnection {
			break
		}
		if n == attempts {
			break
		}

		t.reconnect(ctx)

		delay := backoffDelay(n)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			t.recordAttempt(false)
			return record.Reading{}, ctx.Err()
		}
	}

	t.recordAttempt(false)
	return record.Reading{}, lastErr
}

// backoffDelay returns min(100ms*2^(n-1), 5000ms) for the n-th attempt
// (1-indexed, delay applies before attempt n+1).
func backoffDelay(n int) time.Duration {
	d := 100 * time.Millisecond
	for i := 1; i < n; i++ {
		d *= 2
		if d >= 5*time.Second {
			return 5 * time.Second
		}
	}
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func (t *SCD40Transport) attemptRead(ctx context.Context) (record.Reading, error) {
	t.fdMu.Lock()
	defer t.fdMu.Unlock()

	if t.bus == nil {
		return record.Reading{}, &Error{Kind: KindConnection, Err: fmt.Errorf("bus not open")}
	}

	if err := t.bus.WriteToAddr(ctx, t.cfg.Address, codec.EncodeCommand(codec.CmdReadMeasurement)); err != nil {
		return record.Reading{}, &Error{Kind: KindFrame, Err: err}
	}
	time.Sleep(1 * time.Millisecond)

	frame := make([]byte, codec.FrameSize)
	if err := t.bus.ReadFromAddr(ctx, t.cfg.Address, frame); err != nil {
		return record.Reading{}, &Error{Kind: KindFrame, Err: err}
	}

	words, err := codec.DecodeFrame(frame)
	if err != nil {
		return record.Reading{}, &Error{Kind: KindFrame, Err: err}
	}

	physical := codec.Convert(words)
	if !physical.AllValid() {
		return record.Reading{}, &Error{Kind: KindValidation, Err: fmt.Errorf("measurement out of range")}
	}

	return record.Reading{
		Timestamp:   time.Now().UTC(),
		CO2PPM:      physical.CO2PPM,
		TempC:       physical.TemperatureC,
		HumidityPct: physical.HumidityPct,
		Quality:     physical.Quality,
	}, nil
}

// reconnect closes the bus, applies backoff-free best-effort teardown, and
// reopens it. Failures here are only logged; the next attemptRead then
// fails with KindConnection, which ends ReadSensor's retry loop.
func (t *SCD40Transport) reconnect(ctx context.Context) {
	t.statsMu.Lock()
	t.stats.ReconnectionAttempts++
	t.statsMu.Unlock()

	t.fdMu.Lock()
	_ = t.closeLocked()
	t.connected.Store(false)
	t.fdMu.Unlock()

	if err := t.Initialize(ctx); err != nil {
		slog.Debug("scd40 reconnect failed", "err", err)
	}
}

func (t *SCD40Transport) sendCommandLocked(ctx context.Context, cmd uint16) error {
	return t.bus.WriteToAddr(ctx, t.cfg.Address, codec.EncodeCommand(cmd))
}

func (t *SCD40Transport) closeLocked() error {
	if t.bus == nil {
		return nil
	}
	type closer interface{ Close() error }
	var err error
	if c, ok := t.bus.(closer); ok {
		err = c.Close()
	}
	t.bus = nil
	return err
}

// Shutdown sends STOP_PERIODIC best-effort and releases the bus handle, per
// the daemon's shutdown ordering.
func (t *SCD40Transport) Shutdown(ctx context.Context) {
	t.fdMu.Lock()
	defer t.fdMu.Unlock()
	if t.bus != nil {
		_ = t.sendCommandLocked(ctx, codec.CmdStopPeriodic)
		_ = t.closeLocked()
	}
	t.connected.Store(false)
}

func (t *SCD40Transport) recordAttempt(success bool) {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	now := time.Now().UTC()
	t.stats.LastAttemptTime = now
	if success {
		t.stats.SuccessfulReads++
		t.stats.LastSuccessTime = now
	} else {
		t.stats.FailedReads++
	}
}
