package engine

import (
	"testing"

	"github.com/marmos91/cellfs/pkg/cell"
	"github.com/stretchr/testify/assert"
)

func TestSlots_Deterministic(t *testing.T) {
	ref := NewRef()
	a := slots{salt: ref}
	b := slots{salt: ref}

	assert.Equal(t, a.metadata(7), b.metadata(7))
	assert.Equal(t, a.cluster(7, 3), b.cluster(7, 3))
}

func TestSlots_DistinctFieldsDoNotAlias(t *testing.T) {
	s := slots{salt: NewRef()}
	other := slots{salt: NewRef()}

	seen := make(map[cell.Address]string)
	add := func(label string, addr cell.Address) {
		t.Helper()
		prev, dup := seen[addr]
		assert.False(t, dup, "%s aliases %s", label, prev)
		seen[addr] = label
	}

	for id := uint64(0); id < 4; id++ {
		add("metadata", s.metadata(id))
		add("owner", s.owner(id))
		add("target", s.target(id))
		for k := uint64(0); k < 4; k++ {
			add("name", s.name(id, k))
			add("cluster", s.cluster(id, k))
		}
		add("index element", s.indexElement(id))
		add("other namespace metadata", other.metadata(id))
	}
	add("counter", s.counter())
	add("index length", s.indexLength())
	add("registration", s.registration(other.salt))
}

func TestSlots_MetadataDiffersFromClusterZero(t *testing.T) {
	s := slots{salt: NewRef()}
	assert.NotEqual(t, s.metadata(0), s.cluster(0, 0))
	assert.NotEqual(t, s.name(1, 0), s.name(0, 1))
}
