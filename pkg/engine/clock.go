package engine

import (
	"sync"
	"time"
)

// Clock abstracts the time source that stamps every mutating call.
// Production hosts use SystemClock(); tests inject a FakeClock.
type Clock interface {
	Now() time.Time
}

// SystemClock returns a Clock backed by the time package.
func SystemClock() Clock { return systemClock{} }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// FakeClock is a deterministic Clock. Time stands still until Set or Advance
// is called.
//
// FakeClock is safe for concurrent use by multiple goroutines.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock returns a FakeClock initialized to t.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// timestamp converts t to the stored form: unix seconds, never zero, since a
// zero timestamp means the entry does not exist.
func timestamp(t time.Time) uint64 {
	sec := t.Unix()
	if sec < 1 {
		return 1
	}
	return uint64(sec)
}
