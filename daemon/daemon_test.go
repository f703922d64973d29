package daemon

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mklimuk/sensord/cache"
	"github.com/mklimuk/sensord/health"
	"github.com/mklimuk/sensord/httpapi"
	"github.com/mklimuk/sensord/internal/config"
	"github.com/mklimuk/sensord/internal/shutdown"
	"github.com/mklimuk/sensord/record"
	"github.com/mklimuk/sensord/store"
)

type fakeTransport struct {
	connected  bool
	readErr    error
	reading    record.Reading
	initCalls  int
	shutdownCalled bool
}

func (f *fakeTransport) Initialize(ctx context.Context) error {
	f.initCalls++
	f.connected = true
	return nil
}

func (f *fakeTransport) ReadSensor(ctx context.Context) (record.Reading, error) {
	return f.reading, f.readErr
}

func (f *fakeTransport) IsConnected() bool { return f.connected }

func (f *fakeTransport) Shutdown(ctx context.Context) { f.shutdownCalled = true }

type fakeStorer struct {
	putCalls  int
	putErr    error
	closeCalled bool
}

func (f *fakeStorer) Put(ctx context.Context, r record.Reading) error {
	f.putCalls++
	return f.putErr
}

func (f *fakeStorer) Close() error {
	f.closeCalled = true
	return nil
}

type nopStoreReader struct{}

func (nopStoreReader) GetRecent(ctx context.Context, count int) ([]record.Reading, error) {
	return nil, nil
}
func (nopStoreReader) GetRange(ctx context.Context, start, end time.Time, maxResults int) ([]record.Reading, error) {
	return nil, nil
}
func (nopStoreReader) Info(ctx context.Context) (store.Info, error) { return store.Info{}, nil }

func newTestDaemon(t *testing.T, tr Transport, st Storer) (*Daemon, *shutdown.Coordinator) {
	t.Helper()
	cfg := config.Default()
	cfg.Daemon.SamplingIntervalSecs = 1

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	monitor := health.New(logger, health.Thresholds{})
	queryCache := cache.New(10, time.Minute)
	srv := httpapi.New(httpapi.Config{Addr: "127.0.0.1:0"}, nopStoreReader{}, queryCache, cache.NewMonitor(), monitor, logger)

	coord, _ := shutdown.New(context.Background())
	d := New(cfg, logger, tr, st, srv, monitor, coord, queryCache)
	return d, coord
}

func TestRunSensorCycleStoresValidReading(t *testing.T) {
	v := float32(420)
	tr := &fakeTransport{connected: true, reading: record.Reading{Timestamp: time.Now().UTC(), CO2PPM: &v, Quality: record.FlagCO2Valid}}
	st := &fakeStorer{}

	d, _ := newTestDaemon(t, tr, st)
	ok := d.runSensorCycle(context.Background())

	assert.True(t, ok)
	assert.Equal(t, 1, st.putCalls)
}

func TestRunSensorCycleInvalidatesQueryCacheOnSuccessfulPut(t *testing.T) {
	v := float32(420)
	tr := &fakeTransport{connected: true, reading: record.Reading{Timestamp: time.Now().UTC(), CO2PPM: &v, Quality: record.FlagCO2Valid}}
	st := &fakeStorer{}

	d, _ := newTestDaemon(t, tr, st)
	d.queryCache.Put(100, []record.Reading{tr.reading})

	ok := d.runSensorCycle(context.Background())
	assert.True(t, ok)

	_, hit := d.queryCache.Get(100)
	assert.False(t, hit)
}

func TestRunSensorCycleReinitializesWhenDisconnected(t *testing.T) {
	v := float32(420)
	tr := &fakeTransport{connected: false, reading: record.Reading{Timestamp: time.Now().UTC(), CO2PPM: &v}}
	st := &fakeStorer{}

	d, _ := newTestDaemon(t, tr, st)
	d.runSensorCycle(context.Background())

	assert.Equal(t, 1, tr.initCalls)
}

func TestRunSensorCycleCountsFailureOnEmptyReading(t *testing.T) {
	tr := &fakeTransport{connected: true, reading: record.Reading{Timestamp: time.Now().UTC()}}
	st := &fakeStorer{}

	d, _ := newTestDaemon(t, tr, st)
	ok := d.runSensorCycle(context.Background())

	assert.False(t, ok)
	assert.Equal(t, 0, st.putCalls)
}

func TestSleepUntilNextTickHonorsShutdownFlag(t *testing.T) {
	tr := &fakeTransport{connected: true}
	st := &fakeStorer{}
	d, coord := newTestDaemon(t, tr, st)
	d.samplingInterval = 2 * time.Second

	coord.Request()
	start := time.Now()
	d.sleepUntilNextTick(context.Background())
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
