package testing

import (
	"context"
	"testing"

	"github.com/marmos91/cellfs/pkg/cell"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contextWithCancel() (context.Context, context.CancelFunc) {
	return context.WithCancel(context.Background())
}

// mustStore commits a single cell.
func mustStore(t *testing.T, b cell.Backend, a cell.Address, w cell.Word) {
	t.Helper()
	err := b.Update(testContext(), func(tx cell.Store) error {
		return tx.Store(a, w)
	})
	require.NoError(t, err)
}

// assertCell checks the committed value of a cell.
func assertCell(t *testing.T, b cell.Backend, a cell.Address, expected cell.Word) {
	t.Helper()
	err := b.View(testContext(), func(tx cell.Store) error {
		w, err := tx.Load(a)
		require.NoError(t, err)
		assert.Equal(t, expected, w, "cell %s", a)
		return nil
	})
	require.NoError(t, err)
}

// collect returns every non-zero cell in iteration order.
func collect(t *testing.T, b cell.Backend) []cell.Cell {
	t.Helper()
	var cells []cell.Cell
	err := b.Range(testContext(), func(a cell.Address, w cell.Word) error {
		cells = append(cells, cell.Cell{Address: a, Word: w})
		return nil
	})
	require.NoError(t, err)
	return cells
}
