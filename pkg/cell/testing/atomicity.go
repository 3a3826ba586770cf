package testing

import (
	"errors"
	"testing"

	"github.com/marmos91/cellfs/pkg/cell"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunAtomicityTests verifies that aborted updates leave no trace.
func (suite *BackendTestSuite) RunAtomicityTests(t *testing.T) {
	t.Run("AbortDiscardsWrites", suite.testAbortDiscardsWrites)
	t.Run("AbortKeepsPreviousValue", suite.testAbortKeepsPreviousValue)
	t.Run("BudgetExhaustionAborts", suite.testBudgetExhaustionAborts)
}

var errAbort = errors.New("abort")

func (suite *BackendTestSuite) testAbortDiscardsWrites(t *testing.T) {
	b := suite.newBackend(t)

	err := b.Update(testContext(), func(tx cell.Store) error {
		require.NoError(t, tx.Store(addr(1), word(1)))
		require.NoError(t, tx.Store(addr(2), word(2)))
		return errAbort
	})
	assert.ErrorIs(t, err, errAbort)

	assertCell(t, b, addr(1), cell.ZeroWord)
	assertCell(t, b, addr(2), cell.ZeroWord)
}

func (suite *BackendTestSuite) testAbortKeepsPreviousValue(t *testing.T) {
	b := suite.newBackend(t)
	mustStore(t, b, addr(7), word(7))

	err := b.Update(testContext(), func(tx cell.Store) error {
		require.NoError(t, tx.Store(addr(7), word(8)))
		require.NoError(t, tx.Store(addr(9), word(9)))
		return errAbort
	})
	assert.ErrorIs(t, err, errAbort)

	assertCell(t, b, addr(7), word(7))
	assertCell(t, b, addr(9), cell.ZeroWord)
}

func (suite *BackendTestSuite) testBudgetExhaustionAborts(t *testing.T) {
	b := suite.newBackend(t)

	err := b.Update(testContext(), func(tx cell.Store) error {
		m := cell.NewMeter(tx, 2)
		if err := m.Store(addr(1), word(1)); err != nil {
			return err
		}
		if err := m.Store(addr(2), word(2)); err != nil {
			return err
		}
		return m.Store(addr(3), word(3))
	})
	assert.ErrorIs(t, err, cell.ErrBudgetExhausted)
	assert.Empty(t, collect(t, b))
}
