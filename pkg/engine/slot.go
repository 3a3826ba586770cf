package engine

import (
	"encoding/binary"

	"github.com/marmos91/cellfs/pkg/cell"
	"golang.org/x/crypto/sha3"
)

// fieldTag distinguishes the logical fields that share one namespace salt.
type fieldTag byte

const (
	tagMetadata fieldTag = iota + 1
	tagOwner
	tagName
	tagCluster
	tagTarget
	tagIndexLength
	tagIndexElement
	tagCounter
	tagRegistration
)

// preimageSize is salt(16) + tag(1) + entry id(8) + sub-index(8).
const preimageSize = 16 + 1 + 8 + 8

// slots computes cell addresses for one namespace.
//
// The address of a field is Keccak-256(salt || tag || id || sub), with id and
// sub big-endian. Fields without a sub-index use sub = 0; singleton fields
// (counter, index length) use id = 0 as well.
type slots struct {
	salt Ref
}

func (s slots) address(tag fieldTag, id, sub uint64) cell.Address {
	var pre [preimageSize]byte
	copy(pre[:16], s.salt[:])
	pre[16] = byte(tag)
	binary.BigEndian.PutUint64(pre[17:25], id)
	binary.BigEndian.PutUint64(pre[25:33], sub)

	h := sha3.NewLegacyKeccak256()
	h.Write(pre[:])

	var addr cell.Address
	h.Sum(addr[:0])
	return addr
}

func (s slots) metadata(id uint64) cell.Address { return s.address(tagMetadata, id, 0) }
func (s slots) owner(id uint64) cell.Address    { return s.address(tagOwner, id, 0) }
func (s slots) target(id uint64) cell.Address   { return s.address(tagTarget, id, 0) }
func (s slots) counter() cell.Address           { return s.address(tagCounter, 0, 0) }

func (s slots) name(id, chunk uint64) cell.Address {
	return s.address(tagName, id, chunk)
}

func (s slots) cluster(id, index uint64) cell.Address {
	return s.address(tagCluster, id, index)
}

// registration addresses the host registry cell of ref. The 16 reference
// bytes fill the id and sub-index fields exactly.
func (s slots) registration(ref Ref) cell.Address {
	return s.address(tagRegistration,
		binary.BigEndian.Uint64(ref[:8]),
		binary.BigEndian.Uint64(ref[8:]))
}

func (s slots) indexLength() cell.Address {
	return s.address(tagIndexLength, 0, 0)
}

func (s slots) indexElement(position uint64) cell.Address {
	return s.address(tagIndexElement, position, 0)
}
