package s3_test

import (
	"context"
	"testing"

	"github.com/marmos91/cellfs/pkg/cell"
	cells3 "github.com/marmos91/cellfs/pkg/cell/s3"
	celltesting "github.com/marmos91/cellfs/pkg/cell/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBackend(t *testing.T, client cells3.API) *cells3.S3Backend {
	t.Helper()
	b, err := cells3.NewS3Backend(context.Background(), cells3.S3BackendConfig{
		Client:    client,
		Bucket:    "cells",
		KeyPrefix: "test/",
	})
	require.NoError(t, err)
	return b
}

func TestS3Backend(t *testing.T) {
	suite := &celltesting.BackendTestSuite{
		NewBackend: func(t *testing.T) cell.Backend {
			return newBackend(t, newFakeS3())
		},
	}
	suite.Run(t)
}

func TestS3Backend_MissingBucket(t *testing.T) {
	_, err := cells3.NewS3Backend(context.Background(), cells3.S3BackendConfig{
		Client: newFakeS3(),
		Bucket: "elsewhere",
	})
	assert.Error(t, err)
}

func TestS3Backend_RequiresClient(t *testing.T) {
	_, err := cells3.NewS3Backend(context.Background(), cells3.S3BackendConfig{Bucket: "cells"})
	assert.Error(t, err)
}

func TestS3Backend_ZeroWordDeletesObject(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	b := newBackend(t, fake)

	var a cell.Address
	a[5] = 1
	var w cell.Word
	w[0] = 7

	require.NoError(t, b.Update(ctx, func(tx cell.Store) error { return tx.Store(a, w) }))
	assert.Equal(t, 1, fake.len())

	require.NoError(t, b.Update(ctx, func(tx cell.Store) error { return tx.Store(a, cell.ZeroWord) }))
	assert.Equal(t, 0, fake.len())
}

func TestS3Backend_AbortedCallbackNeverReachesBucket(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	b := newBackend(t, fake)

	var a cell.Address
	var w cell.Word
	w[0] = 1

	err := b.Update(ctx, func(tx cell.Store) error {
		require.NoError(t, tx.Store(a, w))
		return cell.ErrBudgetExhausted
	})
	assert.ErrorIs(t, err, cell.ErrBudgetExhausted)
	assert.Equal(t, 0, fake.len())
	assert.Equal(t, 0, fake.puts)
}

func TestS3Backend_FlushFailureIsReported(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	fake.failPutAfter = 0
	b := newBackend(t, fake)

	var a cell.Address
	var w cell.Word
	w[0] = 1

	err := b.Update(ctx, func(tx cell.Store) error { return tx.Store(a, w) })
	assert.Error(t, err)
}
