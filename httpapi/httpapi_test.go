package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/sensord/cache"
	"github.com/mklimuk/sensord/health"
	"github.com/mklimuk/sensord/record"
	"github.com/mklimuk/sensord/store"
)

type fakeStore struct {
	recent []record.Reading
	ranged []record.Reading
	info   store.Info
	err    error
}

func (f *fakeStore) GetRecent(ctx context.Context, count int) ([]record.Reading, error) {
	if f.err != nil {
		return nil, f.err
	}
	if count < len(f.recent) {
		return f.recent[:count], nil
	}
	return f.recent, nil
}

func (f *fakeStore) GetRange(ctx context.Context, start, end time.Time, maxResults int) ([]record.Reading, error) {
	return f.ranged, f.err
}

func (f *fakeStore) Info(ctx context.Context) (store.Info, error) {
	return f.info, f.err
}

func newTestServer(t *testing.T, fs *fakeStore) *Server {
	t.Helper()
	c := cache.New(10, 30*time.Second)
	m := cache.NewMonitor()
	h := health.New(nil, health.Thresholds{})
	h.RegisterCheck("fake", func(ctx context.Context) health.CheckResult {
		return health.CheckResult{Status: health.Healthy}
	})
	return New(Config{Addr: "127.0.0.1:0"}, fs, c, m, h, nil)
}

func doRequest(s *Server, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "203.0.113.5:12345"
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpointReturnsOverallStatus(t *testing.T) {
	s := newTestServer(t, &fakeStore{})
	rec := doRequest(s, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body basicHealthBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "HEALTHY", body.Status)
}

func TestDataRecentDefaultsCountTo100(t *testing.T) {
	v := float32(420)
	readings := make([]record.Reading, 150)
	for i := range readings {
		readings[i] = record.Reading{Timestamp: time.Now().UTC(), CO2PPM: &v}
	}
	s := newTestServer(t, &fakeStore{recent: readings})

	rec := doRequest(s, http.MethodGet, "/data/recent")
	require.Equal(t, http.StatusOK, rec.Code)

	var body readingsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Readings, 100)
	assert.Equal(t, 100, body.TotalCount)
}

func TestDataRecentRejectsInvalidCount(t *testing.T) {
	s := newTestServer(t, &fakeStore{})
	rec := doRequest(s, http.MethodGet, "/data/recent?count=-5")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDataRecentRejectsCountAboveMax(t *testing.T) {
	s := newTestServer(t, &fakeStore{})
	rec := doRequest(s, http.MethodGet, "/data/recent?count=10001")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDataRangeRequiresISO8601(t *testing.T) {
	s := newTestServer(t, &fakeStore{})
	rec := doRequest(s, http.MethodGet, "/data/range?start=not-a-date&end=2026-01-01T00:00:00Z")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDataRangeRejectsSpanOverSevenDays(t *testing.T) {
	s := newTestServer(t, &fakeStore{})
	rec := doRequest(s, http.MethodGet, "/data/range?start=2026-01-01T00:00:00Z&end=2026-02-01T00:00:00Z")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDataAggregatesDefaultIntervalIsOneHour(t *testing.T) {
	s := newTestServer(t, &fakeStore{})
	rec := doRequest(s, http.MethodGet, "/data/aggregates?start=2026-01-01T00:00:00Z&end=2026-01-01T02:00:00Z")
	require.Equal(t, http.StatusOK, rec.Code)

	var body aggregatesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Buckets, 2)
	assert.Equal(t, 2, body.TotalIntervals)
	assert.Equal(t, "1H", body.Interval)
}

func TestDataAggregatesRejectsNonDividingInterval(t *testing.T) {
	s := newTestServer(t, &fakeStore{})
	rec := doRequest(s, http.MethodGet, "/data/aggregates?start=2026-01-01T00:00:00Z&end=2026-01-01T01:00:00Z&interval=40T")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMethodNotAllowedForNonGet(t *testing.T) {
	s := newTestServer(t, &fakeStore{})
	rec := doRequest(s, http.MethodPost, "/data/recent")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET", rec.Header().Get("Allow"))
}

func TestUnknownRouteReturns404WithEndpointList(t *testing.T) {
	s := newTestServer(t, &fakeStore{})
	rec := doRequest(s, http.MethodGet, "/does/not/exist")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body struct {
		Available []string `json:"available_endpoints"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Available, "/data/recent")
}

func TestInjectionPatternRejected(t *testing.T) {
	s := newTestServer(t, &fakeStore{})
	rec := doRequest(s, http.MethodGet, "/data/recent?count=1;DROP%20TABLE%20readings")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimitReturns429AfterSixtyPerMinute(t *testing.T) {
	s := newTestServer(t, &fakeStore{})
	for i := 0; i < 60; i++ {
		rec := doRequest(s, http.MethodGet, "/alive")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := doRequest(s, http.MethodGet, "/alive")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestDataInfoSurfacesStoreInfo(t *testing.T) {
	s := newTestServer(t, &fakeStore{info: store.Info{TotalRecordsEstimate: 42, Healthy: true}})
	rec := doRequest(s, http.MethodGet, "/data/info")
	require.Equal(t, http.StatusOK, rec.Code)

	var info store.Info
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, int64(42), info.TotalRecordsEstimate)
}
