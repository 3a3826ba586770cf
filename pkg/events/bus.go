// Package events distributes committed engine events to subscribers.
//
// A Bus is the engine.Notifier a Host is configured with; it fans every
// event out to the subscribers registered on it. A Journal is one such
// subscriber that appends events to a CBOR log.
package events

import (
	"sync"

	"github.com/marmos91/cellfs/internal/logger"
	"github.com/marmos91/cellfs/pkg/engine"
)

// Bus fans events out to subscribers, synchronously and in subscription
// order. A subscriber that panics is logged and skipped; the others still
// receive the event.
//
// Thread Safety:
// Subscribe, unsubscribe and Notify may be called concurrently.
type Bus struct {
	mu   sync.RWMutex
	subs []subscription
	next uint64
}

type subscription struct {
	id uint64
	n  engine.Notifier
}

// NewBus returns a Bus with no subscribers.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers n and returns a function that removes it again.
func (b *Bus) Subscribe(n engine.Notifier) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	id := b.next
	b.subs = append(b.subs, subscription{id: id, n: n})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Notify implements engine.Notifier.
func (b *Bus) Notify(e engine.Event) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	for _, s := range subs {
		deliver(s.n, e)
	}
}

func deliver(n engine.Notifier, e engine.Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("Event subscriber panicked on %s for entry %d: %v", e.Kind, e.EntryID, r)
		}
	}()
	n.Notify(e)
}
