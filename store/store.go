// Package store implements the time-series store: an LSM-backed ordered
// key-value engine holding Reading records keyed by an 8-byte big-endian
// microsecond timestamp, with TTL-based retention, recent/range/stream query
// paths, and basic store-health introspection.
package store

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/mklimuk/sensord/record"
)

const (
	// minFreeDiskBytes is the free-space precondition for Put, per the
	// store's disk-full policy.
	minFreeDiskBytes = 100 * 1024 * 1024

	maxRecentCount  = 10_000
	maxRangeResults = 50_000

	defaultStreamBatchSize = 1000

	prefetchBytesPerRow = 150
	maxPrefetchBytes    = 1 << 20 // 1 MB

	sentinelKey = "sensord:sentinel"
)

// Config configures the store at open.
type Config struct {
	Dir           string
	RetentionSecs int64
}

// Error reports a store-level failure distinct from "no rows found".
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("store: %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Info summarizes store state for the diagnostic and /data/info surfaces.
type Info struct {
	TotalRecordsEstimate int64
	EarliestTimestamp    time.Time
	LatestTimestamp      time.Time
	DBSizeBytes          int64
	Healthy              bool
	Path                 string
}

// Store wraps a badger.DB tuned for a time-series write pattern: small
// memtable, modest SST size, block compression, bloom filter on keys, a
// small block cache. diskFree is swapped out in tests.
type Store struct {
	db   *badger.DB
	cfg  Config
	diskFree func(path string) (uint64, error)

	mu sync.RWMutex // guards closed
	closed bool
}

// Open initializes the backing engine at cfg.Dir with TTL support for
// cfg.RetentionSecs and writes a sentinel key used by Health.
func Open(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Dir).
		WithMemTableSize(8 << 20).
		WithBaseTableSize(16 << 20).
		WithCompression(options.ZSTD).
		WithBlockCacheSize(2 << 20).
		WithBloomFalsePositive(0.01).
		WithSyncWrites(false) // WAL on, fsync off: async durability per spec

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &Error{Op: "open", Err: err}
	}

	s := &Store{db: db, cfg: cfg, diskFree: diskFreeBytes}

	if err := db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(sentinelKey), []byte("1"))
	}); err != nil {
		_ = db.Close()
		return nil, &Error{Op: "open", Err: err}
	}

	return s, nil
}

// Close releases the engine's file handles.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Put persists one reading, keyed by its microsecond timestamp. It fails
// cleanly (never panics) when free disk space is below the 100 MB
// precondition.
func (s *Store) Put(_ context.Context, r record.Reading) error {
	free, err := s.diskFree(s.cfg.Dir)
	if err != nil {
		return &Error{Op: "put", Err: err}
	}
	if free < minFreeDiskBytes {
		return &Error{Op: "put", Err: fmt.Errorf("insufficient free disk space: %d bytes", free)}
	}

	key := record.EncodeKey(r.Timestamp)
	value := record.Serialize(r)

	entry := badger.NewEntry(key[:], value)
	if s.cfg.RetentionSecs > 0 {
		entry = entry.WithTTL(time.Duration(s.cfg.RetentionSecs) * time.Second)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(entry)
	})
	if err != nil {
		return &Error{Op: "put", Err: err}
	}
	return nil
}

// GetRecent returns up to count readings in reverse chronological order.
// count is clamped to [1, maxRecentCount]. Callers typically place this
// behind cache.Cache; Store itself performs no caching.
func (s *Store) GetRecent(_ context.Context, count int) ([]record.Reading, error) {
	count = clamp(count, 1, maxRecentCount)

	out := make([]record.Reading, 0, count)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchSize = prefetchSize(count)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}); it.Valid() && len(out) < count; it.Next() {
			item := it.Item()
			if len(item.Key()) != record.KeySize {
				continue // skip non-reading keys such as the sentinel
			}
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			reading, err := record.Deserialize(val)
			if err != nil {
				continue // corrupted entry: skip, don't abort the whole query
			}
			out = append(out, reading)
		}
		return nil
	})
	if err != nil {
		return nil, &Error{Op: "get_recent", Err: err}
	}
	return out, nil
}

// GetRange returns readings with start <= ts <= end in chronological order,
// stopping at maxResults (clamped to maxRangeResults).
func (s *Store) GetRange(_ context.Context, start, end time.Time, maxResults int) ([]record.Reading, error) {
	if start.After(end) {
		return nil, &Error{Op: "get_range", Err: fmt.Errorf("start after end")}
	}
	if maxResults <= 0 || maxResults > maxRangeResults {
		maxResults = maxRangeResults
	}

	startKey := record.EncodeKey(start)
	endKey := record.EncodeKey(end)

	out := make([]record.Reading, 0, minInt(maxResults, 1024))
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = prefetchSize(maxResults)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(startKey[:]); it.Valid() && len(out) < maxResults; it.Next() {
			key := it.Item().Key()
			if len(key) != record.KeySize {
				continue
			}
			if bytes.Compare(key, endKey[:]) > 0 {
				break
			}
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			reading, err := record.Deserialize(val)
			if err != nil {
				continue
			}
			out = append(out, reading)
		}
		return nil
	})
	if err != nil {
		return nil, &Error{Op: "get_range", Err: err}
	}
	return out, nil
}

// BatchFunc receives a chunk of readings and returns false to halt
// streaming early.
type BatchFunc func(batch []record.Reading) bool

// StreamRange iterates [start, end] in chronological order, delivering
// batches of up to batchSize to onBatch. The tail batch is delivered only
// if non-empty. Returns the number of readings processed.
func (s *Store) StreamRange(_ context.Context, start, end time.Time, onBatch BatchFunc, batchSize, maxResults int) (int, error) {
	if start.After(end) {
		return 0, &Error{Op: "stream_range", Err: fmt.Errorf("start after end")}
	}
	if batchSize <= 0 {
		batchSize = defaultStreamBatchSize
	}
	if maxResults <= 0 || maxResults > maxRangeResults {
		maxResults = maxRangeResults
	}

	startKey := record.EncodeKey(start)
	endKey := record.EncodeKey(end)

	processed := 0
	halted := false
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = prefetchSize(batchSize)
		it := txn.NewIterator(opts)
		defer it.Close()

		batch := make([]record.Reading, 0, batchSize)
		flush := func() bool {
			if len(batch) == 0 {
				return true
			}
			keepGoing := onBatch(batch)
			batch = make([]record.Reading, 0, batchSize)
			return keepGoing
		}

		for it.Seek(startKey[:]); it.Valid() && processed < maxResults; it.Next() {
			key := it.Item().Key()
			if len(key) != record.KeySize {
				continue
			}
			if bytes.Compare(key, endKey[:]) > 0 {
				break
			}
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			reading, err := record.Deserialize(val)
			if err != nil {
				continue
			}
			batch = append(batch, reading)
			processed++
			if len(batch) >= batchSize {
				if !flush() {
					halted = true
					break
				}
			}
		}
		if !halted {
			flush()
		}
		return nil
	})
	if err != nil {
		return processed, &Error{Op: "stream_range", Err: err}
	}
	return processed, nil
}

// Info reports store-level statistics for diagnostics.
func (s *Store) Info(ctx context.Context) (Info, error) {
	lsm, vlog := s.db.Size()
	info := Info{
		DBSizeBytes: lsm + vlog,
		Path:        s.cfg.Dir,
		Healthy:     s.Health(ctx),
	}

	var count int64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		first := true
		var earliest, latest []byte
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			if len(key) != record.KeySize {
				continue
			}
			count++
			if first {
				earliest = append([]byte(nil), key...)
				first = false
			}
			latest = append([]byte(nil), key...)
		}
		if earliest != nil {
			info.EarliestTimestamp = record.DecodeKey(earliest)
		}
		if latest != nil {
			info.LatestTimestamp = record.DecodeKey(latest)
		}
		return nil
	})
	if err != nil {
		return Info{}, &Error{Op: "info", Err: err}
	}
	info.TotalRecordsEstimate = count
	return info, nil
}

// Health performs a cheap read against the sentinel key. Both success and
// not-found count as healthy; only a storage error is unhealthy.
func (s *Store) Health(context.Context) bool {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(sentinelKey))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
	return err == nil
}

// Cleanup forces a compaction of the whole LSM tree into a single level,
// which drops expired entries, then runs one value-log GC pass. TTL-driven
// compaction happens automatically in the background; this is the manual
// trigger.
func (s *Store) Cleanup(context.Context) error {
	if err := s.db.Flatten(1); err != nil {
		return &Error{Op: "cleanup", Err: err}
	}
	err := s.db.RunValueLogGC(0.5)
	if err != nil && err != badger.ErrNoRewrite {
		return &Error{Op: "cleanup", Err: err}
	}
	return nil
}

func prefetchSize(expectedRows int) int {
	bytesHint := expectedRows * prefetchBytesPerRow
	if bytesHint > maxPrefetchBytes {
		bytesHint = maxPrefetchBytes
	}
	rows := bytesHint / prefetchBytesPerRow
	if rows < 1 {
		rows = 1
	}
	return rows
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func diskFreeBytes(path string) (uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("statfs %q: %w", path, err)
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
