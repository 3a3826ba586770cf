// Package s3 implements a cell backend on Amazon S3 or any S3-compatible
// object store.
package s3

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/cellfs/internal/logger"
	"github.com/marmos91/cellfs/pkg/cell"
	"github.com/marmos91/cellfs/pkg/metrics"
)

// maxDeleteBatch is the S3 limit on keys per DeleteObjects request.
const maxDeleteBatch = 1000

// API is the subset of *s3.Client the backend needs.
type API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Backend implements cell.Backend with one object per non-zero cell.
//
// Key Design:
//   - Object key is KeyPrefix + lowercase hex of the 32-byte address
//   - Object body is the raw 32-byte word
//   - Hex keys sort like the addresses they encode, so ListObjectsV2 yields
//     cells in ascending address order
//
// Atomicity:
// S3 has no multi-object transactions. Update runs the callback against a
// cell.Overlay and only flushes Dirty() once the callback succeeded, so every
// engine-level abort (ownership failure, size overflow, exhausted budget)
// leaves the bucket untouched. A transport failure in the middle of the
// flush, however, can leave part of a commit applied; deployments that need
// crash atomicity should use the badger backend.
//
// Thread Safety:
// Updates are serialized with mu so that two flushes never interleave.
type S3Backend struct {
	client    API
	bucket    string
	keyPrefix string

	mu     sync.RWMutex
	closed bool

	metrics metrics.CellMetrics
}

// S3BackendConfig contains configuration for the S3 backend.
type S3BackendConfig struct {
	// Client is the configured S3 client
	Client API

	// Bucket is the S3 bucket name. It must already exist.
	Bucket string

	// KeyPrefix is an optional prefix for all object keys
	// Example: "cellfs/" results in keys like "cellfs/00ab...ff"
	KeyPrefix string

	// Metrics receives transaction observations. Nil disables collection.
	Metrics metrics.CellMetrics
}

// NewS3Backend creates a new S3-based cell backend.
//
// The bucket must already exist - this function does not create it.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - cfg: S3 configuration
//
// Returns:
//   - *S3Backend: Initialized backend
//   - error: Returns error if bucket access fails or context is cancelled
func NewS3Backend(ctx context.Context, cfg S3BackendConfig) (*S3Backend, error) {
	// ========================================================================
	// Step 1: Check context before S3 operations
	// ========================================================================

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// ========================================================================
	// Step 2: Validate configuration
	// ========================================================================

	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}

	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	// ========================================================================
	// Step 3: Verify bucket access
	// ========================================================================

	_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	m := cfg.Metrics
	if m == nil {
		m = metrics.NewNoopCellMetrics()
	}

	return &S3Backend{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		metrics:   m,
	}, nil
}

// Name implements cell.Backend.
func (b *S3Backend) Name() string {
	return "s3"
}

// objectKey returns the full S3 object key for a cell address.
func (b *S3Backend) objectKey(addr cell.Address) string {
	return b.keyPrefix + hex.EncodeToString(addr[:])
}

// addressFromKey parses an object key back into a cell address.
func (b *S3Backend) addressFromKey(key string) (cell.Address, error) {
	var addr cell.Address
	raw, err := hex.DecodeString(strings.TrimPrefix(key, b.keyPrefix))
	if err != nil || len(raw) != cell.WordSize {
		return addr, fmt.Errorf("object key %q: %w", key, cell.ErrCorruptCell)
	}
	copy(addr[:], raw)
	return addr, nil
}

// Update implements cell.Backend.
func (b *S3Backend) Update(ctx context.Context, fn func(tx cell.Store) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return cell.ErrClosed
	}

	start := time.Now()
	dirty := 0
	defer func() { b.metrics.RecordTransaction("update", time.Since(start), dirty, err) }()

	tx := cell.NewOverlay(func(addr cell.Address) (cell.Word, error) {
		return b.load(ctx, addr)
	})
	if err := fn(tx); err != nil {
		return err
	}

	cells := tx.Dirty()
	dirty = len(cells)
	return b.flush(ctx, cells)
}

// View implements cell.Backend.
func (b *S3Backend) View(ctx context.Context, fn func(tx cell.Store) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return cell.ErrClosed
	}

	start := time.Now()
	defer func() { b.metrics.RecordTransaction("view", time.Since(start), 0, err) }()

	return fn(cell.NewReadOnlyOverlay(func(addr cell.Address) (cell.Word, error) {
		return b.load(ctx, addr)
	}))
}

// Range implements cell.Backend.
func (b *S3Backend) Range(ctx context.Context, fn func(addr cell.Address, w cell.Word) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return cell.ErrClosed
	}

	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(b.keyPrefix),
	})

	for paginator.HasMorePages() {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list cells: %w", err)
		}

		for _, obj := range page.Contents {
			addr, err := b.addressFromKey(aws.ToString(obj.Key))
			if err != nil {
				return err
			}
			w, err := b.load(ctx, addr)
			if err != nil {
				return err
			}
			// Deleted between list and get.
			if w.IsZero() {
				continue
			}
			if err := fn(addr, w); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close implements cell.Backend. The S3 client holds no resources.
func (b *S3Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// load fetches one cell, mapping NoSuchKey to the zero word.
func (b *S3Backend) load(ctx context.Context, addr cell.Address) (cell.Word, error) {
	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(addr)),
	})
	if err != nil {
		var notFound *types.NoSuchKey
		if errors.As(err, &notFound) {
			return cell.ZeroWord, nil
		}
		return cell.ZeroWord, fmt.Errorf("failed to get cell %s from S3: %w", addr, err)
	}
	defer result.Body.Close()

	body, err := io.ReadAll(result.Body)
	if err != nil {
		return cell.ZeroWord, fmt.Errorf("failed to read cell %s: %w", addr, err)
	}
	if len(body) != cell.WordSize {
		return cell.ZeroWord, fmt.Errorf("cell %s has %d bytes: %w", addr, len(body), cell.ErrCorruptCell)
	}

	var w cell.Word
	copy(w[:], body)
	return w, nil
}

// flush writes a committed overlay to the bucket.
//
// Non-zero cells are PUT one object each; zero cells are removed with batched
// DeleteObjects calls.
func (b *S3Backend) flush(ctx context.Context, cells []cell.Cell) error {
	var deletes []types.ObjectIdentifier

	for _, c := range cells {
		if c.Word.IsZero() {
			deletes = append(deletes, types.ObjectIdentifier{Key: aws.String(b.objectKey(c.Address))})
			continue
		}

		body := c.Word
		_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(b.bucket),
			Key:         aws.String(b.objectKey(c.Address)),
			Body:        bytes.NewReader(body[:]),
			ContentType: aws.String("application/octet-stream"),
		})
		if err != nil {
			logger.Error("S3 flush interrupted at cell %s: %v", c.Address, err)
			return fmt.Errorf("failed to put cell %s: %w", c.Address, err)
		}
	}

	for start := 0; start < len(deletes); start += maxDeleteBatch {
		end := min(start+maxDeleteBatch, len(deletes))

		out, err := b.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(b.bucket),
			Delete: &types.Delete{
				Objects: deletes[start:end],
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			logger.Error("S3 flush interrupted while clearing cells: %v", err)
			return fmt.Errorf("failed to clear cells: %w", err)
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return fmt.Errorf("failed to clear %d cells, first %s: %s",
				len(out.Errors), aws.ToString(first.Key), aws.ToString(first.Message))
		}
	}

	return nil
}
