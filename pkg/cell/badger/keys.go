package badger

import (
	"fmt"

	"github.com/marmos91/cellfs/pkg/cell"
)

// Database Key Namespace Design
// ==============================
//
// BadgerDB is a key-value store, so we use prefixed keys to keep cells apart
// from any bookkeeping keys the backend may need later.
//
// Data Type    Prefix   Key Format          Value Type
// =====================================================
// Cell         "c:"     c:<32-byte addr>    32-byte word (raw)
//
// Addresses are raw bytes, not hex, so a prefix iteration over "c:" yields
// cells in ascending address order, which is what Range promises.

const prefixCell = "c:"

// keyCell returns the key for a cell address.
func keyCell(addr cell.Address) []byte {
	key := make([]byte, 0, len(prefixCell)+cell.WordSize)
	key = append(key, prefixCell...)
	return append(key, addr[:]...)
}

// addressFromKey extracts the address from a cell key.
func addressFromKey(key []byte) (cell.Address, error) {
	var addr cell.Address
	if len(key) != len(prefixCell)+cell.WordSize {
		return addr, fmt.Errorf("cell key of %d bytes: %w", len(key), cell.ErrCorruptCell)
	}
	copy(addr[:], key[len(prefixCell):])
	return addr, nil
}

// decodeWord validates and copies a stored value.
func decodeWord(val []byte) (cell.Word, error) {
	var w cell.Word
	if len(val) != cell.WordSize {
		return w, fmt.Errorf("cell value of %d bytes: %w", len(val), cell.ErrCorruptCell)
	}
	copy(w[:], val)
	return w, nil
}
