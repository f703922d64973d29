// Package cache implements the query cache (an LRU over recent-N query
// results) and the per-query-type performance monitor that the HTTP query
// surface and the store consult on every request.
package cache

import (
	"sync"
	"time"

	"github.com/mklimuk/sensord/record"
)

const (
	// DefaultCapacity is the number of distinct count values the LRU holds.
	DefaultCapacity = 10
	// DefaultMaxAge is how long a cached entry remains valid.
	DefaultMaxAge = 30 * time.Second
)

type entry struct {
	readings   []record.Reading
	insertTime time.Time
}

// Stats are the atomic-style counters exposed to the health monitor.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Total     uint64
}

// HitRatio returns Hits/Total, or 0 when no requests have been made.
func (s Stats) HitRatio() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Total)
}

// Cache is a thread-safe LRU over count -> []Reading, capacity DefaultCapacity
// entries, each valid for up to maxAge. Eviction is deterministic: at
// capacity, the entry with the oldest insertTime is evicted.
type Cache struct {
	mu       sync.Mutex
	capacity int
	maxAge   time.Duration
	entries  map[int]*entry

	stats Stats
}

func New(capacity int, maxAge time.Duration) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Cache{
		capacity: capacity,
		maxAge:   maxAge,
		entries:  make(map[int]*entry, capacity),
	}
}

// Get returns the cached readings for count if present and not expired.
func (c *Cache) Get(count int) ([]record.Reading, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Total++

	e, ok := c.entries[count]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	if time.Since(e.insertTime) > c.maxAge {
		delete(c.entries, count)
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	return e.readings, true
}

// Put stores readings for count, evicting the oldest entry if the cache is
// at capacity and count is not already present.
func (c *Cache) Put(count int, readings []record.Reading) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[count]; !exists && len(c.entries) >= c.capacity {
		c.evictOldestLocked()
	}
	c.entries[count] = &entry{readings: readings, insertTime: time.Now()}
}

func (c *Cache) evictOldestLocked() {
	var oldestKey int
	var oldestTime time.Time
	first := true
	for k, e := range c.entries {
		if first || e.insertTime.Before(oldestTime) {
			oldestKey = k
			oldestTime = e.insertTime
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
		c.stats.Evictions++
	}
}

// Stats returns a snapshot of the cache's counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Invalidate drops every cached entry; called after a write so stale
// recent-N results are never served.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[int]*entry, c.capacity)
}
