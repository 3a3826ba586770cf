// Package memory implements an in-memory cell backend for cellfs.
package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/marmos91/cellfs/pkg/cell"
	"github.com/marmos91/cellfs/pkg/metrics"
)

// MemoryBackend implements cell.Backend using in-memory storage.
//
// This implementation stores all non-zero cells in a map. It's designed for:
//   - Testing and development
//   - Short-lived hosts whose state does not need to survive a restart
//
// Characteristics:
//   - Fast: All operations are memory-speed
//   - Volatile: Data lost on restart
//   - Atomic: Update callbacks run against a cell.Overlay and only a
//     successful callback has its writes applied
//
// Thread Safety:
// Update holds the write lock for the whole callback, View holds the read
// lock, so readers never observe a partially-applied transaction.
type MemoryBackend struct {
	// cells stores every non-zero cell keyed by address
	cells map[cell.Address]cell.Word

	// maxCells caps len(cells); 0 means unlimited
	maxCells int

	// mu protects cells and closed
	mu     sync.RWMutex
	closed bool

	metrics metrics.CellMetrics
}

// MemoryBackendConfig contains configuration for the memory backend.
type MemoryBackendConfig struct {
	// MaxCells caps the number of non-zero cells. 0 means unlimited.
	MaxCells int `mapstructure:"max_cells"`

	// Metrics receives transaction observations. Nil disables collection.
	Metrics metrics.CellMetrics `mapstructure:"-"`
}

// ErrFull is returned when a commit would exceed MaxCells.
var ErrFull = errors.New("memory backend is full")

// NewMemoryBackend creates an empty in-memory backend.
//
// Parameters:
//   - ctx: Context for cancellation (checked before initialization)
//   - config: Optional limits and metrics
//
// Returns:
//   - *MemoryBackend: Initialized backend
//   - error: Only returns error if context is cancelled
func NewMemoryBackend(ctx context.Context, config MemoryBackendConfig) (*MemoryBackend, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m := config.Metrics
	if m == nil {
		m = metrics.NewNoopCellMetrics()
	}

	return &MemoryBackend{
		cells:    make(map[cell.Address]cell.Word),
		maxCells: config.MaxCells,
		metrics:  m,
	}, nil
}

// Name implements cell.Backend.
func (b *MemoryBackend) Name() string {
	return "memory"
}

// Len returns the number of non-zero cells currently stored.
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.cells)
}

// Update implements cell.Backend.
//
// The callback sees its own writes through the overlay. If it returns an
// error, the overlay is dropped and the map is untouched.
func (b *MemoryBackend) Update(ctx context.Context, fn func(tx cell.Store) error) (err error) {
	// ========================================================================
	// Step 1: Check context before acquiring lock
	// ========================================================================

	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	dirty := 0
	defer func() { b.metrics.RecordTransaction("update", time.Since(start), dirty, err) }()

	// ========================================================================
	// Step 2: Run the callback against an overlay under the write lock
	// ========================================================================

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return cell.ErrClosed
	}

	tx := cell.NewOverlay(b.load)
	if err := fn(tx); err != nil {
		return err
	}

	// ========================================================================
	// Step 3: Apply buffered writes
	// ========================================================================

	cells := tx.Dirty()
	if b.maxCells > 0 {
		grown := len(b.cells)
		for _, c := range cells {
			_, present := b.cells[c.Address]
			switch {
			case c.Word.IsZero() && present:
				grown--
			case !c.Word.IsZero() && !present:
				grown++
			}
		}
		if grown > b.maxCells {
			return fmt.Errorf("commit needs %d cells, limit %d: %w", grown, b.maxCells, ErrFull)
		}
	}

	for _, c := range cells {
		if c.Word.IsZero() {
			delete(b.cells, c.Address)
			continue
		}
		b.cells[c.Address] = c.Word
	}
	dirty = len(cells)

	return nil
}

// View implements cell.Backend.
func (b *MemoryBackend) View(ctx context.Context, fn func(tx cell.Store) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	defer func() { b.metrics.RecordTransaction("view", time.Since(start), 0, err) }()

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return cell.ErrClosed
	}

	return fn(cell.NewReadOnlyOverlay(b.load))
}

// Range implements cell.Backend.
func (b *MemoryBackend) Range(ctx context.Context, fn func(addr cell.Address, w cell.Word) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return cell.ErrClosed
	}
	addrs := make([]cell.Address, 0, len(b.cells))
	for addr := range b.cells {
		addrs = append(addrs, addr)
	}
	snapshot := make(map[cell.Address]cell.Word, len(b.cells))
	for addr, w := range b.cells {
		snapshot[addr] = w
	}
	b.mu.RUnlock()

	sort.Slice(addrs, func(i, j int) bool {
		return bytes.Compare(addrs[i][:], addrs[j][:]) < 0
	})

	for _, addr := range addrs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(addr, snapshot[addr]); err != nil {
			return err
		}
	}
	return nil
}

// Close implements cell.Backend. Stored cells are released.
func (b *MemoryBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.cells = nil
	return nil
}

// load reads a committed cell. Callers hold mu.
func (b *MemoryBackend) load(addr cell.Address) (cell.Word, error) {
	return b.cells[addr], nil
}
