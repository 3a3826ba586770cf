package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/cellfs/pkg/cell"
	"github.com/marmos91/cellfs/pkg/cell/memory"
	"github.com/stretchr/testify/require"
)

var (
	alice = Identity{0xa1, 0x1c, 0xe0}
	bob   = Identity{0xb0, 0xb0}
	epoch = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
)

// fixture is a host on a fresh memory backend with a fake clock and an
// event recorder.
type fixture struct {
	host    *Host
	clock   *FakeClock
	backend *memory.MemoryBackend

	mu     sync.Mutex
	events []Event
}

func newFixture(t *testing.T, opts ...func(*HostOptions)) *fixture {
	t.Helper()

	backend, err := memory.NewMemoryBackend(context.Background(), memory.MemoryBackendConfig{})
	require.NoError(t, err)

	f := &fixture{clock: NewFakeClock(epoch), backend: backend}
	o := HostOptions{
		Clock: f.clock,
		Notifier: NotifierFunc(func(e Event) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.events = append(f.events, e)
		}),
	}
	for _, opt := range opts {
		opt(&o)
	}

	f.host = NewHost(backend, o)
	t.Cleanup(func() { _ = f.host.Close() })
	return f
}

// namespace creates a namespace owned by alice.
func (f *fixture) namespace(t *testing.T) *Namespace {
	t.Helper()
	ns, err := f.host.CreateNamespace(as(alice))
	require.NoError(t, err)
	return ns
}

func (f *fixture) recorded() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.events...)
}

func as(id Identity) CallContext {
	return Call(context.Background(), id)
}

// scratch returns an empty, writable cell store for codec tests.
func scratch() *cell.Overlay {
	return cell.NewOverlay(func(cell.Address) (cell.Word, error) { return cell.ZeroWord, nil })
}

func bytesOf(n int, b byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b + byte(i)
	}
	return out
}
