package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/sensord/record"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Dir: t.TempDir(), RetentionSecs: 3600})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func co2Reading(ts time.Time, ppm float32) record.Reading {
	v := ppm
	return record.Reading{Timestamp: ts, CO2PPM: &v, Quality: record.FlagCO2Valid}
}

func TestPutGetRecentRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		r := co2Reading(base.Add(time.Duration(i)*time.Second), float32(400+i))
		require.NoError(t, s.Put(ctx, r))
	}

	recent, err := s.GetRecent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	// newest first
	assert.InDelta(t, 404, *recent[0].CO2PPM, 0.001)
	assert.InDelta(t, 403, *recent[1].CO2PPM, 0.001)
	assert.InDelta(t, 402, *recent[2].CO2PPM, 0.001)
}

func TestGetRecentClampsCount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, co2Reading(time.Now().UTC(), 500)))

	recent, err := s.GetRecent(ctx, 50_000)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestGetRangeChronologicalOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		require.NoError(t, s.Put(ctx, co2Reading(base.Add(time.Duration(i)*time.Minute), float32(400+i))))
	}

	results, err := s.GetRange(ctx, base.Add(2*time.Minute), base.Add(5*time.Minute), 0)
	require.NoError(t, err)
	require.Len(t, results, 4)
	for i, r := range results {
		assert.InDelta(t, 402+i, *r.CO2PPM, 0.001)
	}
}

func TestGetRangeRejectsInvertedRange(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_, err := s.GetRange(ctx, time.Now(), time.Now().Add(-time.Hour), 0)
	require.Error(t, err)
}

func TestStreamRangeDeliversTailBatch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 7; i++ {
		require.NoError(t, s.Put(ctx, co2Reading(base.Add(time.Duration(i)*time.Second), float32(400+i))))
	}

	var batches [][]record.Reading
	processed, err := s.StreamRange(ctx, base, base.Add(10*time.Second), func(b []record.Reading) bool {
		cp := append([]record.Reading(nil), b...)
		batches = append(batches, cp)
		return true
	}, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, 7, processed)
	require.Len(t, batches, 3) // 3 + 3 + 1 tail
	assert.Len(t, batches[2], 1)
}

func TestStreamRangeHaltsWhenCallbackReturnsFalse(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Put(ctx, co2Reading(base.Add(time.Duration(i)*time.Second), float32(400+i))))
	}

	calls := 0
	_, err := s.StreamRange(ctx, base, base.Add(20*time.Second), func(b []record.Reading) bool {
		calls++
		return false
	}, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestPutFailsCleanlyWhenDiskFull(t *testing.T) {
	s := openTestStore(t)
	s.diskFree = func(string) (uint64, error) { return 1024, nil }

	err := s.Put(context.Background(), co2Reading(time.Now().UTC(), 500))
	require.Error(t, err)
}

func TestHealthTrueOnFreshStore(t *testing.T) {
	s := openTestStore(t)
	assert.True(t, s.Health(context.Background()))
}

func TestInfoReflectsPutRecords(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Put(ctx, co2Reading(base.Add(time.Duration(i)*time.Minute), float32(400+i))))
	}

	info, err := s.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), info.TotalRecordsEstimate)
	assert.True(t, info.Healthy)
	assert.Equal(t, base, info.EarliestTimestamp)
	assert.Equal(t, base.Add(2*time.Minute), info.LatestTimestamp)
}

func TestCleanupDoesNotError(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Cleanup(context.Background()))
}
