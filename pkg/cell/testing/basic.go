package testing

import (
	"errors"
	"testing"

	"github.com/marmos91/cellfs/pkg/cell"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunBasicTests executes load/store tests.
func (suite *BackendTestSuite) RunBasicTests(t *testing.T) {
	t.Run("LoadMissingIsZero", suite.testLoadMissingIsZero)
	t.Run("StoreThenLoad", suite.testStoreThenLoad)
	t.Run("ReadYourWrites", suite.testReadYourWrites)
	t.Run("StoreZeroClears", suite.testStoreZeroClears)
	t.Run("ViewIsReadOnly", suite.testViewIsReadOnly)
	t.Run("CancelledContext", suite.testCancelledContext)
}

func (suite *BackendTestSuite) testLoadMissingIsZero(t *testing.T) {
	b := suite.newBackend(t)

	err := b.View(testContext(), func(tx cell.Store) error {
		w, err := tx.Load(addr(1))
		require.NoError(t, err)
		assert.True(t, w.IsZero())
		return nil
	})
	require.NoError(t, err)
}

func (suite *BackendTestSuite) testStoreThenLoad(t *testing.T) {
	b := suite.newBackend(t)

	mustStore(t, b, addr(1), word(0xab))
	assertCell(t, b, addr(1), word(0xab))
	assertCell(t, b, addr(2), cell.ZeroWord)
}

func (suite *BackendTestSuite) testReadYourWrites(t *testing.T) {
	b := suite.newBackend(t)

	err := b.Update(testContext(), func(tx cell.Store) error {
		require.NoError(t, tx.Store(addr(3), word(0x33)))
		w, err := tx.Load(addr(3))
		require.NoError(t, err)
		assert.Equal(t, word(0x33), w)
		return nil
	})
	require.NoError(t, err)
}

func (suite *BackendTestSuite) testStoreZeroClears(t *testing.T) {
	b := suite.newBackend(t)

	mustStore(t, b, addr(4), word(0x44))
	mustStore(t, b, addr(4), cell.ZeroWord)

	assertCell(t, b, addr(4), cell.ZeroWord)
	assert.Empty(t, collect(t, b))
}

func (suite *BackendTestSuite) testViewIsReadOnly(t *testing.T) {
	b := suite.newBackend(t)

	err := b.View(testContext(), func(tx cell.Store) error {
		return tx.Store(addr(5), word(0x55))
	})
	assert.True(t, errors.Is(err, cell.ErrReadOnly), "got %v", err)
	assertCell(t, b, addr(5), cell.ZeroWord)
}

func (suite *BackendTestSuite) testCancelledContext(t *testing.T) {
	b := suite.newBackend(t)

	ctx, cancel := contextWithCancel()
	cancel()

	called := false
	err := b.Update(ctx, func(tx cell.Store) error {
		called = true
		return nil
	})
	assert.Error(t, err)
	assert.False(t, called)
}
