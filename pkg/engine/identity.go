package engine

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/marmos91/cellfs/pkg/cell"
)

// IdentitySize is the width of a caller identity, in bytes.
const IdentitySize = 20

// Identity is the fixed caller identity supplied with every call.
//
// The zero Identity is the anonymous caller. It can own entries like any
// other identity.
type Identity [IdentitySize]byte

// ParseIdentity parses the hex form of an identity, with or without the 0x
// prefix. The empty string parses to the anonymous identity.
func ParseIdentity(s string) (Identity, error) {
	var id Identity
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return id, nil
	}
	if len(s) != 2*IdentitySize {
		return id, fmt.Errorf("identity %q: want %d hex digits, got %d", s, 2*IdentitySize, len(s))
	}
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return id, fmt.Errorf("identity %q: %w", s, err)
	}
	return id, nil
}

// IsAnonymous reports whether id is the zero identity.
func (id Identity) IsAnonymous() bool {
	return id == Identity{}
}

// String returns the 0x-prefixed hex form.
func (id Identity) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

// MarshalText implements encoding.TextMarshaler.
func (id Identity) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *Identity) UnmarshalText(text []byte) error {
	parsed, err := ParseIdentity(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// word stores the identity right-aligned in a cell.
func (id Identity) word() cell.Word {
	var w cell.Word
	copy(w[cell.WordSize-IdentitySize:], id[:])
	return w
}

func identityFromWord(w cell.Word) Identity {
	var id Identity
	copy(id[:], w[cell.WordSize-IdentitySize:])
	return id
}

// Ref is an opaque reference to a Namespace.
//
// Distinct references never share cells: the reference is the salt of every
// slot address in its namespace. The zero Ref is the null reference.
type Ref uuid.UUID

// NullRef is the null namespace reference.
var NullRef Ref

// NewRef mints a fresh random reference.
func NewRef() Ref {
	return Ref(uuid.New())
}

// ParseRef parses the canonical UUID form of a reference.
func ParseRef(s string) (Ref, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return NullRef, fmt.Errorf("namespace ref %q: %w", s, err)
	}
	return Ref(u), nil
}

// IsNull reports whether r is the null reference.
func (r Ref) IsNull() bool {
	return r == NullRef
}

// String returns the canonical UUID form.
func (r Ref) String() string {
	return uuid.UUID(r).String()
}

// MarshalText implements encoding.TextMarshaler.
func (r Ref) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Ref) UnmarshalText(text []byte) error {
	parsed, err := ParseRef(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// word stores the reference left-aligned in a cell.
func (r Ref) word() cell.Word {
	var w cell.Word
	copy(w[:], r[:])
	return w
}

func refFromWord(w cell.Word) Ref {
	var r Ref
	copy(r[:], w[:len(r)])
	return r
}
