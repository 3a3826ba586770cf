package engine

import (
	"encoding/binary"
	"fmt"

	"github.com/marmos91/cellfs/pkg/cell"
)

// Kind is the type of an entry.
type Kind uint8

const (
	// KindFile is an entry with a byte body
	KindFile Kind = iota

	// KindDirectory is an entry referencing another namespace
	KindDirectory

	// KindLink is reserved
	KindLink
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindLink:
		return "link"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Metadata word layout (big-endian):
//
//	[0]       kind
//	[1..9)    last-modified timestamp, unix seconds; 0 means absent
//	[9..13)   byte size
//	[13..32)  reserved, zero
const (
	offKind      = 0
	offTimestamp = 1
	offSize      = offTimestamp + 8
	sizeFieldLen = 4

	sizeFieldBits = 8 * sizeFieldLen
)

// MaxFileSize is the largest body size the metadata word can represent.
const MaxFileSize uint64 = 1<<sizeFieldBits - 1

// Metadata is the decoded form of an entry's metadata word.
type Metadata struct {
	Kind      Kind
	Timestamp uint64
	Size      uint64
}

// Exists reports whether the entry is present. The timestamp is the only
// existence signal.
func (m Metadata) Exists() bool {
	return m.Timestamp != 0
}

// PackMetadata encodes m into a single word.
//
// Sizes wider than the size field are rejected with ErrSizeOverflow rather
// than truncated.
func PackMetadata(m Metadata) (cell.Word, error) {
	var w cell.Word
	if m.Size > MaxFileSize {
		return w, &Error{Code: ErrSizeOverflow, Message: fmt.Sprintf("size %d exceeds %d", m.Size, MaxFileSize)}
	}
	w[offKind] = byte(m.Kind)
	binary.BigEndian.PutUint64(w[offTimestamp:offSize], m.Timestamp)
	binary.BigEndian.PutUint32(w[offSize:offSize+sizeFieldLen], uint32(m.Size))
	return w, nil
}

// UnpackMetadata decodes a metadata word. The zero word decodes to an absent
// entry.
func UnpackMetadata(w cell.Word) Metadata {
	return Metadata{
		Kind:      Kind(w[offKind]),
		Timestamp: binary.BigEndian.Uint64(w[offTimestamp:offSize]),
		Size:      uint64(binary.BigEndian.Uint32(w[offSize : offSize+sizeFieldLen])),
	}
}

// sizeAfterWrite applies the body size rule for a write of n bytes at offset
// onto a body of size old.
//
// A write at offset 0 sets the size to n (truncating or extending); any other
// write extends the size to cover it and never shrinks it.
func sizeAfterWrite(old, offset uint64, n int) (uint64, bool) {
	length := uint64(n)
	if offset > MaxFileSize || length > MaxFileSize-offset {
		return 0, false
	}
	if offset == 0 {
		return length, true
	}
	return max(old, offset+length), true
}

func loadMetadata(tx cell.Store, s slots, id uint64) (Metadata, error) {
	w, err := tx.Load(s.metadata(id))
	if err != nil {
		return Metadata{}, err
	}
	return UnpackMetadata(w), nil
}

func storeMetadata(tx cell.Store, s slots, id uint64, m Metadata) error {
	w, err := PackMetadata(m)
	if err != nil {
		return err
	}
	return tx.Store(s.metadata(id), w)
}
