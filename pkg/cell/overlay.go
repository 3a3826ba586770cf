package cell

import (
	"bytes"
	"fmt"
	"sort"
)

// Overlay buffers stores on top of a read function until the owning
// transaction decides to commit or discard them.
//
// Backends without native transactions (memory, s3) run every Update callback
// against an Overlay and only apply Dirty() once the callback succeeded.
type Overlay struct {
	read     func(Address) (Word, error)
	dirty    map[Address]Word
	readOnly bool
}

// NewOverlay returns a writable overlay on top of read.
func NewOverlay(read func(Address) (Word, error)) *Overlay {
	return &Overlay{read: read, dirty: make(map[Address]Word)}
}

// NewReadOnlyOverlay returns an overlay that rejects stores.
func NewReadOnlyOverlay(read func(Address) (Word, error)) *Overlay {
	return &Overlay{read: read, readOnly: true}
}

// Load implements Store, preferring buffered writes.
func (o *Overlay) Load(addr Address) (Word, error) {
	if w, ok := o.dirty[addr]; ok {
		return w, nil
	}
	return o.read(addr)
}

// Store implements Store.
func (o *Overlay) Store(addr Address, w Word) error {
	if o.readOnly {
		return fmt.Errorf("store %s: %w", addr, ErrReadOnly)
	}
	o.dirty[addr] = w
	return nil
}

// Dirty returns the buffered writes in ascending address order.
func (o *Overlay) Dirty() []Cell {
	cells := make([]Cell, 0, len(o.dirty))
	for addr, w := range o.dirty {
		cells = append(cells, Cell{Address: addr, Word: w})
	}
	SortCells(cells)
	return cells
}

// Cell is an address/word pair.
type Cell struct {
	Address Address
	Word    Word
}

// SortCells orders cells by ascending address.
func SortCells(cells []Cell) {
	sort.Slice(cells, func(i, j int) bool {
		return bytes.Compare(cells[i].Address[:], cells[j].Address[:]) < 0
	})
}
