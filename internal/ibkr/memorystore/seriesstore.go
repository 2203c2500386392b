package memorystore

import (
	"sync"
	"time"
)

// SeriesStore keeps the trade, quote and volume series of one connection,
// bounded by a trailing retention window shared by every contract.
type SeriesStore struct {
	mu        sync.RWMutex
	retention time.Duration

	trades  []Trade
	quotes  []Quote
	volumes []VolumeTick
}

func NewSeriesStore(retention time.Duration) *SeriesStore {
	return &SeriesStore{
		retention: retention,
		trades:    make([]Trade, 0),
		quotes:    make([]Quote, 0),
		volumes:   make([]VolumeTick, 0),
	}
}

// Retention returns the window the store was built with.
func (s *SeriesStore) Retention() time.Duration {
	return s.retention
}

// Append adds a batch in arrival order. The whole batch becomes visible to
// readers at once.
func (s *SeriesStore) Append(b Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(b)
}

// Ingest appends a batch and trims against now in one step.
func (s *SeriesStore) Ingest(b Batch, now time.Time) (evicted int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(b)
	return s.trimLocked(now.Add(-s.retention))
}

// Trim removes every record with timestamp < now-retention from all three
// series and returns how many were removed. Order is preserved.
func (s *SeriesStore) Trim(now time.Time, retention time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trimLocked(now.Add(-retention))
}

// ClearAll empties all three series.
func (s *SeriesStore) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = make([]Trade, 0)
	s.quotes = make([]Quote, 0)
	s.volumes = make([]VolumeTick, 0)
}

// Snapshot returns copies of the series; later appends do not affect it.
func (s *SeriesStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Trades:  make([]Trade, len(s.trades)),
		Quotes:  make([]Quote, len(s.quotes)),
		Volumes: make([]VolumeTick, len(s.volumes)),
	}
	copy(snap.Trades, s.trades)
	copy(snap.Quotes, s.quotes)
	copy(snap.Volumes, s.volumes)
	return snap
}

// Counts returns the length of each series.
func (s *SeriesStore) Counts() (trades, quotes, volumes int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.trades), len(s.quotes), len(s.volumes)
}

// CountAll returns the total number of records stored across all series.
func (s *SeriesStore) CountAll() int {
	t, q, v := s.Counts()
	return t + q + v
}

func (s *SeriesStore) appendLocked(b Batch) {
	s.trades = append(s.trades, b.Trades...)
	s.quotes = append(s.quotes, b.Quotes...)
	s.volumes = append(s.volumes, b.Volumes...)
}

func (s *SeriesStore) trimLocked(cutoff time.Time) int {
	var removed, n int

	s.trades, n = keepSince(s.trades, cutoff, func(t Trade) time.Time { return t.Timestamp })
	removed += n
	s.quotes, n = keepSince(s.quotes, cutoff, func(q Quote) time.Time { return q.Timestamp })
	removed += n
	s.volumes, n = keepSince(s.volumes, cutoff, func(v VolumeTick) time.Time { return v.Timestamp })
	removed += n

	return removed
}

// keepSince filters records older than cutoff in place. Snapshots never alias
// the backing array, so reusing it is safe.
func keepSince[T any](records []T, cutoff time.Time, ts func(T) time.Time) ([]T, int) {
	kept := records[:0]
	for _, r := range records {
		if !ts(r).Before(cutoff) {
			kept = append(kept, r)
		}
	}
	removed := len(records) - len(kept)
	clear(records[len(kept):])
	return kept, removed
}
