package monitoring

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// HistoryStore is a retention-bounded, time-ordered snapshot buffer.
//
// A single writer appends under a mutex and publishes an immutable view through
// an atomic pointer, so readers never block. Elements visible through a
// published view are never rewritten: eviction only reslices the head and new
// entries land past the end of every older view.
type HistoryStore struct {
	clock     Clock
	retention time.Duration

	mu      sync.Mutex
	entries []*Snapshot

	view    atomic.Pointer[historyView]
	current atomic.Pointer[Snapshot]
	evicted atomic.Uint64
}

type historyView struct {
	entries []*Snapshot
}

// NewHistoryStore creates a store keeping snapshots newer than now-retention.
func NewHistoryStore(retention time.Duration, clock Clock) (*HistoryStore, error) {
	if retention <= 0 {
		return nil, configError("retention must be positive, got %s", retention)
	}
	if clock == nil {
		clock = SystemClock
	}
	h := &HistoryStore{
		clock:     clock,
		retention: retention,
	}
	h.view.Store(&historyView{})
	return h, nil
}

// Retention returns the configured retention window.
func (h *HistoryStore) Retention() time.Duration {
	return h.retention
}

// Append adds a snapshot at the tail and evicts every entry at or before
// now-retention.
func (h *HistoryStore) Append(s *Snapshot) error {
	if s == nil {
		return ErrNilSnapshot
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if n := len(h.entries); n > 0 && s.timestamp.Before(h.entries[n-1].timestamp) {
		return ErrOutOfOrder
	}

	h.entries = append(h.entries, s)
	h.current.Store(s)

	cutoff := h.clock.Now().Add(-h.retention)
	expired := 0
	for expired < len(h.entries) && !h.entries[expired].timestamp.After(cutoff) {
		expired++
	}
	if expired > 0 {
		// Reslicing drops the head; the next growth of the backing array
		// copies only live entries.
		h.entries = h.entries[expired:]
		h.evicted.Add(uint64(expired))
	}

	h.view.Store(&historyView{entries: h.entries})
	return nil
}

// Current returns the most recently appended snapshot, or nil.
func (h *HistoryStore) Current() *Snapshot {
	return h.current.Load()
}

// Range returns the snapshots with from < timestamp <= to, oldest first.
func (h *HistoryStore) Range(from, to time.Time) []*Snapshot {
	entries := h.view.Load().entries
	lo := sort.Search(len(entries), func(i int) bool {
		return entries[i].timestamp.After(from)
	})
	hi := sort.Search(len(entries), func(i int) bool {
		return entries[i].timestamp.After(to)
	})
	if lo >= hi {
		return []*Snapshot{}
	}
	out := make([]*Snapshot, hi-lo)
	copy(out, entries[lo:hi])
	return out
}

// Since returns the snapshots of the last d.
func (h *HistoryStore) Since(d time.Duration) []*Snapshot {
	now := h.clock.Now()
	return h.Range(now.Add(-d), now)
}

// Len returns the number of retained snapshots.
func (h *HistoryStore) Len() int {
	return len(h.view.Load().entries)
}

// Evicted returns how many snapshots retention has discarded so far.
func (h *HistoryStore) Evicted() uint64 {
	return h.evicted.Load()
}
