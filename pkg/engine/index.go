package engine

import (
	"encoding/binary"

	"github.com/marmos91/cellfs/pkg/cell"
)

// index is a dense, order-unstable array of words stored in cells: a length
// cell plus one cell per position.
//
// Append is O(1). Remove scans for the value, moves the last element into
// its place and shrinks the array, so removal is O(n) in loads but O(1) in
// stores and does not preserve order.
type index struct {
	slots slots
}

func uint64Word(v uint64) cell.Word {
	var w cell.Word
	binary.BigEndian.PutUint64(w[cell.WordSize-8:], v)
	return w
}

func wordUint64(w cell.Word) uint64 {
	return binary.BigEndian.Uint64(w[cell.WordSize-8:])
}

func (x index) length(tx cell.Store) (uint64, error) {
	w, err := tx.Load(x.slots.indexLength())
	if err != nil {
		return 0, err
	}
	return wordUint64(w), nil
}

func (x index) setLength(tx cell.Store, n uint64) error {
	return tx.Store(x.slots.indexLength(), uint64Word(n))
}

func (x index) append(tx cell.Store, v cell.Word) error {
	n, err := x.length(tx)
	if err != nil {
		return err
	}
	if err := tx.Store(x.slots.indexElement(n), v); err != nil {
		return err
	}
	return x.setLength(tx, n+1)
}

// remove deletes one occurrence of v and reports whether it was found.
func (x index) remove(tx cell.Store, v cell.Word) (bool, error) {
	n, err := x.length(tx)
	if err != nil {
		return false, err
	}

	for i := uint64(0); i < n; i++ {
		w, err := tx.Load(x.slots.indexElement(i))
		if err != nil {
			return false, err
		}
		if w != v {
			continue
		}

		last := n - 1
		if i != last {
			moved, err := tx.Load(x.slots.indexElement(last))
			if err != nil {
				return false, err
			}
			if err := tx.Store(x.slots.indexElement(i), moved); err != nil {
				return false, err
			}
		}
		if err := tx.Store(x.slots.indexElement(last), cell.ZeroWord); err != nil {
			return false, err
		}
		return true, x.setLength(tx, last)
	}
	return false, nil
}

// snapshot copies up to limit elements starting at position start. A start
// past the end yields an empty result; limit 0 means to the end.
func (x index) snapshot(tx cell.Store, start, limit uint64) ([]cell.Word, error) {
	n, err := x.length(tx)
	if err != nil {
		return nil, err
	}
	if start >= n {
		return []cell.Word{}, nil
	}

	end := n
	if limit != 0 && limit < n-start {
		end = start + limit
	}

	out := make([]cell.Word, 0, end-start)
	for i := start; i < end; i++ {
		w, err := tx.Load(x.slots.indexElement(i))
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}
