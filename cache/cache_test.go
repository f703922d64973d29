package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/sensord/record"
)

func reading(ppm float32) record.Reading {
	v := ppm
	return record.Reading{Timestamp: time.Now().UTC(), CO2PPM: &v}
}

func TestCacheMissThenHit(t *testing.T) {
	c := New(2, time.Minute)

	_, ok := c.Get(10)
	assert.False(t, ok)

	c.Put(10, []record.Reading{reading(400)})
	got, ok := c.Get(10)
	require.True(t, ok)
	require.Len(t, got, 1)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, uint64(2), stats.Total)
}

func TestCacheExpiresAfterMaxAge(t *testing.T) {
	c := New(2, 10*time.Millisecond)
	c.Put(5, []record.Reading{reading(400)})
	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get(5)
	assert.False(t, ok)
}

func TestCacheEvictsOldestAtCapacity(t *testing.T) {
	c := New(2, time.Minute)
	c.Put(1, []record.Reading{reading(1)})
	time.Sleep(time.Millisecond)
	c.Put(2, []record.Reading{reading(2)})
	time.Sleep(time.Millisecond)
	c.Put(3, []record.Reading{reading(3)}) // evicts key 1 (oldest)

	_, ok := c.Get(1)
	assert.False(t, ok, "oldest entry should have been evicted")
	_, ok = c.Get(2)
	assert.True(t, ok)
	_, ok = c.Get(3)
	assert.True(t, ok)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Evictions)
}

func TestCacheInvalidateClearsAllEntries(t *testing.T) {
	c := New(2, time.Minute)
	c.Put(1, []record.Reading{reading(1)})
	c.Invalidate()

	_, ok := c.Get(1)
	assert.False(t, ok)
}

func TestMonitorRecordsSlowQuery(t *testing.T) {
	m := NewMonitor()
	timer := m.Start("recent")
	time.Sleep(SlowQueryThreshold + 10*time.Millisecond)
	timer.Stop(false, false)

	snap := m.Snapshot()
	metrics := snap["recent"]
	assert.Equal(t, uint64(1), metrics.TotalCount)
	assert.Equal(t, uint64(1), metrics.SlowCount)
}

func TestMonitorTracksCachedAndFailed(t *testing.T) {
	m := NewMonitor()
	m.Start("range").Stop(true, false)
	m.Start("range").Stop(false, true)

	metrics := m.Snapshot()["range"]
	assert.Equal(t, uint64(2), metrics.TotalCount)
	assert.Equal(t, uint64(1), metrics.CachedCount)
	assert.Equal(t, uint64(1), metrics.FailureCount)
}
