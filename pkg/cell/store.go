// Package cell defines the addressable 32-byte cell substrate every cellfs
// namespace is stored in.
//
// The substrate is deliberately narrow: a flat space of cells, each addressed
// by a 32-byte Address and holding a 32-byte Word. There is no notion of
// entries, files or directories at this level; those are built on top by the
// engine package through deterministic slot addressing.
//
// Absence is the zero word. Loading a cell that was never stored returns the
// zero Word, and storing the zero Word removes the cell from the backend, so
// storage consumption is proportional to the number of non-zero cells.
package cell

import (
	"context"
	"encoding/hex"
)

// WordSize is the width of a cell, in bytes.
const WordSize = 32

// Word is the content of a single cell.
type Word [WordSize]byte

// Address identifies a single cell.
type Address [WordSize]byte

// ZeroWord is the value of every cell that has never been written.
var ZeroWord Word

// IsZero reports whether w is the all-zero word.
func (w Word) IsZero() bool {
	return w == ZeroWord
}

// String returns the 0x-prefixed hex form of the word.
func (w Word) String() string {
	return "0x" + hex.EncodeToString(w[:])
}

// String returns the 0x-prefixed hex form of the address.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// Store is the load/store capability a transaction exposes.
//
// Implementations are not required to be safe for concurrent use; a Store is
// only ever handed to a single Update or View callback.
type Store interface {
	// Load returns the word stored at addr, or ZeroWord if the cell is empty.
	Load(addr Address) (Word, error)

	// Store writes w at addr. Storing ZeroWord clears the cell.
	Store(addr Address, w Word) error
}

// Backend is a persistent or ephemeral cell space with atomic transactions.
//
// Update is the only way to mutate cells: the callback runs against a
// transactional Store and either every store it performed is applied, or, if
// the callback returns an error, none of them are. View runs a read-only
// callback against the latest committed state; stores inside a View fail with
// ErrReadOnly.
//
// Thread Safety:
// Implementations must be safe for concurrent use. They are not required to
// serialize Update calls against each other beyond what atomicity needs; the
// engine Host imposes the global total order.
type Backend interface {
	// Name returns a short backend identifier ("memory", "badger", "s3") used
	// for logging and metrics labels.
	Name() string

	// Update runs fn in a read-write transaction.
	Update(ctx context.Context, fn func(tx Store) error) error

	// View runs fn in a read-only transaction.
	View(ctx context.Context, fn func(tx Store) error) error

	// Range calls fn for every non-zero cell in ascending address order.
	// Returning an error from fn stops the iteration and is returned as-is.
	Range(ctx context.Context, fn func(addr Address, w Word) error) error

	// Close releases backend resources. The backend must not be used after.
	Close() error
}
