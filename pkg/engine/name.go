package engine

import (
	"fmt"

	"github.com/marmos91/cellfs/pkg/cell"
)

// MaxNameLength is the longest name an entry can carry. It is bounded by the
// one-byte length prefix and also serves as the default decode cap.
const MaxNameLength = 255

// firstChunkPayload is the number of name bytes sharing the first cell with
// the length prefix.
const firstChunkPayload = cell.WordSize - 1

// nameCells returns how many cells a name of n bytes occupies.
func nameCells(n int) uint64 {
	if n <= firstChunkPayload {
		return 1
	}
	return 1 + uint64((n-firstChunkPayload+cell.WordSize-1)/cell.WordSize)
}

func checkName(op string, id uint64, name []byte) error {
	if len(name) > MaxNameLength {
		return newError(op, ErrNameTooLong, id, "name of %d bytes exceeds %d", len(name), MaxNameLength)
	}
	return nil
}

// writeName stores name in the name cells of id.
//
// Layout: cell 0 holds the length byte followed by the first 31 bytes; every
// following cell holds the next 32 bytes. An empty name is a zero first cell.
func writeName(tx cell.Store, s slots, id uint64, name []byte) error {
	if len(name) > MaxNameLength {
		return &Error{Code: ErrNameTooLong, EntryID: id, Message: fmt.Sprintf("name of %d bytes exceeds %d", len(name), MaxNameLength)}
	}

	var first cell.Word
	first[0] = byte(len(name))
	rest := name[copy(first[1:], name):]
	if err := tx.Store(s.name(id, 0), first); err != nil {
		return err
	}

	for chunk := uint64(1); len(rest) > 0; chunk++ {
		var w cell.Word
		rest = rest[copy(w[:], rest):]
		if err := tx.Store(s.name(id, chunk), w); err != nil {
			return err
		}
	}
	return nil
}

// readName decodes the name of id, returning at most limit bytes.
func readName(tx cell.Store, s slots, id uint64, limit int) ([]byte, error) {
	first, err := tx.Load(s.name(id, 0))
	if err != nil {
		return nil, err
	}

	n := min(int(first[0]), limit)
	if n <= 0 {
		return []byte{}, nil
	}

	name := make([]byte, 0, n)
	name = append(name, first[1:1+min(n, firstChunkPayload)]...)
	for chunk := uint64(1); len(name) < n; chunk++ {
		w, err := tx.Load(s.name(id, chunk))
		if err != nil {
			return nil, err
		}
		name = append(name, w[:min(n-len(name), cell.WordSize)]...)
	}
	return name, nil
}

// clearName zeroes every cell of the stored name of id.
func clearName(tx cell.Store, s slots, id uint64) error {
	first, err := tx.Load(s.name(id, 0))
	if err != nil {
		return err
	}
	if first.IsZero() {
		return nil
	}
	for chunk, n := uint64(0), nameCells(int(first[0])); chunk < n; chunk++ {
		if err := tx.Store(s.name(id, chunk), cell.ZeroWord); err != nil {
			return err
		}
	}
	return nil
}
