package testing

import (
	"bytes"
	"errors"
	"testing"

	"github.com/marmos91/cellfs/pkg/cell"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunRangeTests verifies full-backend iteration.
func (suite *BackendTestSuite) RunRangeTests(t *testing.T) {
	t.Run("AscendingOrder", suite.testRangeAscending)
	t.Run("StopsOnError", suite.testRangeStopsOnError)
}

func (suite *BackendTestSuite) testRangeAscending(t *testing.T) {
	b := suite.newBackend(t)

	err := b.Update(testContext(), func(tx cell.Store) error {
		for _, n := range []byte{9, 3, 200, 1} {
			if err := tx.Store(addr(n), word(n)); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	cells := collect(t, b)
	require.Len(t, cells, 4)
	for i := 1; i < len(cells); i++ {
		assert.Negative(t, bytes.Compare(cells[i-1].Address[:], cells[i].Address[:]))
	}
	assert.Equal(t, word(200), cells[3].Word)
}

func (suite *BackendTestSuite) testRangeStopsOnError(t *testing.T) {
	b := suite.newBackend(t)
	mustStore(t, b, addr(1), word(1))
	mustStore(t, b, addr(2), word(2))

	stop := errors.New("stop")
	visited := 0
	err := b.Range(testContext(), func(a cell.Address, w cell.Word) error {
		visited++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, visited)
}
