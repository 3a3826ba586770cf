// Package badger implements a persistent cell backend on BadgerDB.
package badger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/cellfs/pkg/cell"
	"github.com/marmos91/cellfs/pkg/metrics"
)

// BadgerBackend implements cell.Backend using BadgerDB for persistence.
//
// Every engine call maps to exactly one BadgerDB transaction: Update uses
// db.Update, which commits only when the callback returns nil, and View uses
// db.View. This gives the engine its all-or-nothing call semantics for free,
// including on crash (BadgerDB's WAL never exposes a half-committed
// transaction).
//
// Storage Model:
// One key per non-zero cell (see keys.go). Storing the zero word deletes the
// key, so the database only grows with live cells.
//
// Thread Safety:
// BadgerDB transactions are safe for concurrent use. The closed flag is
// guarded by mu so that calls after Close fail cleanly instead of panicking
// inside BadgerDB.
type BadgerBackend struct {
	db *badger.DB

	mu     sync.RWMutex
	closed bool

	metrics metrics.CellMetrics
}

// BadgerBackendConfig contains configuration for creating a BadgerDB backend.
type BadgerBackendConfig struct {
	// DBPath is the directory where BadgerDB will store its files
	DBPath string `mapstructure:"db_path"`

	// InMemory runs BadgerDB without touching disk (tests)
	InMemory bool `mapstructure:"in_memory"`

	// BlockCacheSizeMB is BadgerDB's block cache size in MB (default: 64)
	BlockCacheSizeMB int64 `mapstructure:"block_cache_mb"`

	// IndexCacheSizeMB is BadgerDB's index cache size in MB (default: 32)
	IndexCacheSizeMB int64 `mapstructure:"index_cache_mb"`

	// SyncWrites makes every commit fsync before returning
	SyncWrites bool `mapstructure:"sync_writes"`

	// Metrics receives transaction observations. Nil disables collection.
	Metrics metrics.CellMetrics `mapstructure:"-"`
}

// NewBadgerBackend opens (or creates) a BadgerDB cell backend.
//
// Parameters:
//   - ctx: Context for cancellation, checked before opening the database
//   - config: Database location and tuning
//
// Returns:
//   - *BadgerBackend: Backend ready for use
//   - error: Error if the database cannot be opened
func NewBadgerBackend(ctx context.Context, config BadgerBackendConfig) (*BadgerBackend, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if config.DBPath == "" && !config.InMemory {
		return nil, fmt.Errorf("badger backend: db_path is required")
	}

	opts := badger.DefaultOptions(config.DBPath)
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}

	// Cells are 32 bytes of mostly high-entropy data; compression does not pay.
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithCompression(options.None)
	opts = opts.WithSyncWrites(config.SyncWrites)

	blockCacheMB := config.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = 64
	}
	indexCacheMB := config.IndexCacheSizeMB
	if indexCacheMB == 0 {
		indexCacheMB = 32
	}
	opts = opts.WithBlockCacheSize(blockCacheMB << 20)
	opts = opts.WithIndexCacheSize(indexCacheMB << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", config.DBPath, err)
	}

	m := config.Metrics
	if m == nil {
		m = metrics.NewNoopCellMetrics()
	}

	return &BadgerBackend{db: db, metrics: m}, nil
}

// Name implements cell.Backend.
func (b *BadgerBackend) Name() string {
	return "badger"
}

// Update implements cell.Backend.
func (b *BadgerBackend) Update(ctx context.Context, fn func(tx cell.Store) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return cell.ErrClosed
	}

	start := time.Now()
	tx := &txnStore{}
	defer func() { b.metrics.RecordTransaction("update", time.Since(start), tx.dirty, err) }()

	return b.db.Update(func(txn *badger.Txn) error {
		tx.txn = txn
		return fn(tx)
	})
}

// View implements cell.Backend.
func (b *BadgerBackend) View(ctx context.Context, fn func(tx cell.Store) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return cell.ErrClosed
	}

	start := time.Now()
	defer func() { b.metrics.RecordTransaction("view", time.Since(start), 0, err) }()

	return b.db.View(func(txn *badger.Txn) error {
		return fn(&txnStore{txn: txn, readOnly: true})
	})
}

// Range implements cell.Backend.
func (b *BadgerBackend) Range(ctx context.Context, fn func(addr cell.Address, w cell.Word) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return cell.ErrClosed
	}

	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixCell)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			addr, err := addressFromKey(item.Key())
			if err != nil {
				return err
			}
			var w cell.Word
			if err := item.Value(func(val []byte) error {
				w, err = decodeWord(val)
				return err
			}); err != nil {
				return err
			}
			if err := fn(addr, w); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the BadgerDB database and releases all resources.
func (b *BadgerBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close BadgerDB: %w", err)
	}
	return nil
}

// txnStore adapts a BadgerDB transaction to cell.Store.
type txnStore struct {
	txn      *badger.Txn
	readOnly bool
	dirty    int
}

func (s *txnStore) Load(addr cell.Address) (cell.Word, error) {
	item, err := s.txn.Get(keyCell(addr))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return cell.ZeroWord, nil
	}
	if err != nil {
		return cell.ZeroWord, fmt.Errorf("load %s: %w", addr, err)
	}

	var w cell.Word
	err = item.Value(func(val []byte) error {
		w, err = decodeWord(val)
		return err
	})
	return w, err
}

func (s *txnStore) Store(addr cell.Address, w cell.Word) error {
	if s.readOnly {
		return fmt.Errorf("store %s: %w", addr, cell.ErrReadOnly)
	}
	s.dirty++

	if w.IsZero() {
		if err := s.txn.Delete(keyCell(addr)); err != nil {
			return fmt.Errorf("clear %s: %w", addr, err)
		}
		return nil
	}

	val := make([]byte, cell.WordSize)
	copy(val, w[:])
	if err := s.txn.Set(keyCell(addr), val); err != nil {
		return fmt.Errorf("store %s: %w", addr, err)
	}
	return nil
}
