package monitoring

import (
	"context"
	"sync"
	"time"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeClock is a manually driven Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func at(seconds int) time.Time {
	return epoch.Add(time.Duration(seconds) * time.Second)
}

func snapshotAt(ts time.Time, metrics map[string]Value) *Snapshot {
	return NewSnapshot("", ts, NewGroupResult("app", metrics))
}

func seriesSnapshots(values ...float64) []*Snapshot {
	out := make([]*Snapshot, len(values))
	for i, v := range values {
		out[i] = snapshotAt(at(i), map[string]Value{"latency": Number(v)})
	}
	return out
}

// staticCollector returns the value it holds on each call.
type staticCollector struct {
	mu    sync.Mutex
	group string
	value float64
	calls int
}

func (c *staticCollector) Set(v float64) {
	c.mu.Lock()
	c.value = v
	c.mu.Unlock()
}

func (c *staticCollector) Collect(_ context.Context) []GroupResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return []GroupResult{NewGroupResult(c.group, map[string]Value{"value": Number(c.value)})}
}
