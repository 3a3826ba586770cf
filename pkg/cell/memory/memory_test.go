package memory_test

import (
	"context"
	"testing"

	"github.com/marmos91/cellfs/pkg/cell"
	"github.com/marmos91/cellfs/pkg/cell/memory"
	celltesting "github.com/marmos91/cellfs/pkg/cell/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBackend(t *testing.T) {
	suite := &celltesting.BackendTestSuite{
		NewBackend: func(t *testing.T) cell.Backend {
			b, err := memory.NewMemoryBackend(context.Background(), memory.MemoryBackendConfig{})
			require.NoError(t, err)
			return b
		},
	}
	suite.Run(t)
}

func TestMemoryBackend_MaxCells(t *testing.T) {
	ctx := context.Background()
	b, err := memory.NewMemoryBackend(ctx, memory.MemoryBackendConfig{MaxCells: 2})
	require.NoError(t, err)
	defer b.Close()

	put := func(n byte) error {
		return b.Update(ctx, func(tx cell.Store) error {
			var a cell.Address
			a[0] = n
			var w cell.Word
			w[0] = n
			return tx.Store(a, w)
		})
	}

	require.NoError(t, put(1))
	require.NoError(t, put(2))
	assert.ErrorIs(t, put(3), memory.ErrFull)
	assert.Equal(t, 2, b.Len())
}

func TestMemoryBackend_Closed(t *testing.T) {
	ctx := context.Background()
	b, err := memory.NewMemoryBackend(ctx, memory.MemoryBackendConfig{})
	require.NoError(t, err)
	require.NoError(t, b.Close())

	err = b.View(ctx, func(tx cell.Store) error { return nil })
	assert.ErrorIs(t, err, cell.ErrClosed)
}
