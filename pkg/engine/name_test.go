package engine

import (
	"testing"

	"github.com/marmos91/cellfs/pkg/cell"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestName_RoundTrip(t *testing.T) {
	s := slots{salt: NewRef()}

	for _, n := range []int{0, 1, 30, 31, 32, 62, 63, 64, 95, 200, MaxNameLength} {
		tx := scratch()
		name := bytesOf(n, 'a')

		require.NoError(t, writeName(tx, s, 9, name))
		got, err := readName(tx, s, 9, n)
		require.NoError(t, err)
		assert.Equal(t, name, got, "length %d", n)

		assert.Len(t, tx.Dirty(), int(nameCells(n)), "length %d", n)
	}
}

func TestName_FirstCellLayout(t *testing.T) {
	s := slots{salt: NewRef()}
	tx := scratch()

	require.NoError(t, writeName(tx, s, 1, []byte("report.txt")))
	w, err := tx.Load(s.name(1, 0))
	require.NoError(t, err)

	assert.Equal(t, byte(10), w[0])
	assert.Equal(t, []byte("report.txt"), w[1:11])
}

func TestName_EmptyStoresZeroCell(t *testing.T) {
	s := slots{salt: NewRef()}
	tx := scratch()

	require.NoError(t, writeName(tx, s, 1, nil))
	w, err := tx.Load(s.name(1, 0))
	require.NoError(t, err)
	assert.True(t, w.IsZero())
}

func TestName_DecodeCapTruncates(t *testing.T) {
	s := slots{salt: NewRef()}
	tx := scratch()
	name := bytesOf(100, 'A')

	require.NoError(t, writeName(tx, s, 1, name))

	got, err := readName(tx, s, 1, 40)
	require.NoError(t, err)
	assert.Equal(t, name[:40], got)

	got, err = readName(tx, s, 1, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestName_TooLong(t *testing.T) {
	s := slots{salt: NewRef()}
	tx := scratch()

	err := writeName(tx, s, 1, bytesOf(MaxNameLength+1, 'x'))
	assert.True(t, IsCode(err, ErrNameTooLong))
	assert.Empty(t, tx.Dirty())
}

func TestName_Clear(t *testing.T) {
	s := slots{salt: NewRef()}
	tx := scratch()

	require.NoError(t, writeName(tx, s, 1, bytesOf(70, 'n')))
	require.NoError(t, clearName(tx, s, 1))

	for _, c := range tx.Dirty() {
		assert.Equal(t, cell.ZeroWord, c.Word)
	}
	got, err := readName(tx, s, 1, MaxNameLength)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNameCells(t *testing.T) {
	assert.Equal(t, uint64(1), nameCells(0))
	assert.Equal(t, uint64(1), nameCells(31))
	assert.Equal(t, uint64(2), nameCells(32))
	assert.Equal(t, uint64(2), nameCells(63))
	assert.Equal(t, uint64(3), nameCells(64))
	assert.Equal(t, uint64(8), nameCells(MaxNameLength))
}
