package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/cellfs/internal/logger"
	"github.com/marmos91/cellfs/pkg/cell"
	cellBadger "github.com/marmos91/cellfs/pkg/cell/badger"
	"github.com/marmos91/cellfs/pkg/cell/memory"
	cellS3 "github.com/marmos91/cellfs/pkg/cell/s3"
	"github.com/marmos91/cellfs/pkg/engine"
	"github.com/marmos91/cellfs/pkg/events"
	"github.com/marmos91/cellfs/pkg/metrics"
	"github.com/mitchellh/mapstructure"
)

// memoryOptions are the store.memory settings.
type memoryOptions struct {
	MaxCells int `mapstructure:"max_cells"`
}

// badgerOptions are the store.badger settings.
type badgerOptions struct {
	DBPath           string `mapstructure:"db_path"`
	InMemory         bool   `mapstructure:"in_memory"`
	BlockCacheSizeMB int64  `mapstructure:"block_cache_mb"`
	IndexCacheSizeMB int64  `mapstructure:"index_cache_mb"`
	SyncWrites       bool   `mapstructure:"sync_writes"`
}

// s3Options are the store.s3 settings.
type s3Options struct {
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	KeyPrefix       string `mapstructure:"key_prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

// decodeOptions decodes a backend option map. Values coming from the
// environment are strings, so decoding is weakly typed.
func decodeOptions(options map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	return decoder.Decode(options)
}

func decodeMemoryOptions(options map[string]any) (memoryOptions, error) {
	var opts memoryOptions
	err := decodeOptions(options, &opts)
	return opts, err
}

func decodeBadgerOptions(options map[string]any) (badgerOptions, error) {
	var opts badgerOptions
	err := decodeOptions(options, &opts)
	return opts, err
}

func decodeS3Options(options map[string]any) (s3Options, error) {
	var opts s3Options
	err := decodeOptions(options, &opts)
	return opts, err
}

// CreateBackend creates a cell backend based on configuration.
//
// This factory function uses the Type field to determine which backend
// implementation to create, then decodes the type-specific configuration from
// the corresponding map and passes it to the backend's constructor.
//
// Supported types:
//   - "memory": Uses pkg/cell/memory (ephemeral)
//   - "badger": Uses pkg/cell/badger (BadgerDB, persistent)
//   - "s3": Uses pkg/cell/s3 (Amazon S3 or compatible storage)
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Store configuration
//
// Returns:
//   - cell.Backend: Initialized backend
//   - error: Configuration or initialization error
func CreateBackend(ctx context.Context, cfg *StoreConfig) (cell.Backend, error) {
	switch cfg.Type {
	case "memory":
		return createMemoryBackend(ctx, cfg.Memory)
	case "badger":
		return createBadgerBackend(ctx, cfg.Badger)
	case "s3":
		return createS3Backend(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown store type: %q (supported: memory, badger, s3)", cfg.Type)
	}
}

// createMemoryBackend creates an in-memory cell backend.
func createMemoryBackend(ctx context.Context, options map[string]any) (cell.Backend, error) {
	opts, err := decodeMemoryOptions(options)
	if err != nil {
		return nil, fmt.Errorf("failed to decode memory store options: %w", err)
	}

	return memory.NewMemoryBackend(ctx, memory.MemoryBackendConfig{
		MaxCells: opts.MaxCells,
		Metrics:  metrics.NewCellMetrics("memory"),
	})
}

// createBadgerBackend creates a BadgerDB-based persistent cell backend.
func createBadgerBackend(ctx context.Context, options map[string]any) (cell.Backend, error) {
	opts, err := decodeBadgerOptions(options)
	if err != nil {
		return nil, fmt.Errorf("failed to decode badger store options: %w", err)
	}

	// Validate required fields
	if opts.DBPath == "" && !opts.InMemory {
		return nil, fmt.Errorf("badger store: db_path is required")
	}

	backend, err := cellBadger.NewBadgerBackend(ctx, cellBadger.BadgerBackendConfig{
		DBPath:           opts.DBPath,
		InMemory:         opts.InMemory,
		BlockCacheSizeMB: opts.BlockCacheSizeMB,
		IndexCacheSizeMB: opts.IndexCacheSizeMB,
		SyncWrites:       opts.SyncWrites,
		Metrics:          metrics.NewCellMetrics("badger"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create badger store: %w", err)
	}

	return backend, nil
}

// createS3Backend creates an S3-based cell backend.
func createS3Backend(ctx context.Context, options map[string]any) (cell.Backend, error) {
	storeCfg, err := decodeS3Options(options)
	if err != nil {
		return nil, fmt.Errorf("failed to decode S3 store options: %w", err)
	}

	// Validate required fields
	if storeCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 store: bucket is required")
	}

	if storeCfg.Region == "" {
		return nil, fmt.Errorf("S3 store: region is required")
	}

	// ========================================================================
	// Step 1: Build AWS Config
	// ========================================================================

	var configOptions []func(*awsConfig.LoadOptions) error

	// Set region
	configOptions = append(configOptions, awsConfig.WithRegion(storeCfg.Region))

	// Set credentials if provided, otherwise use default credential chain
	if storeCfg.AccessKeyID != "" && storeCfg.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			storeCfg.AccessKeyID,
			storeCfg.SecretAccessKey,
			"", // session token (empty for static credentials)
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	// Every engine commit is one PUT or DELETE per dirty cell, so transient
	// failures are retried well past the AWS default of 3 attempts
	maxRetries := storeCfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	// Load AWS config
	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// ========================================================================
	// Step 2: Create S3 Client
	// ========================================================================

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// Custom endpoint (MinIO, Localstack) with path-style addressing
		if storeCfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(storeCfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	// ========================================================================
	// Step 3: Create S3 Backend
	// ========================================================================

	backend, err := cellS3.NewS3Backend(ctx, cellS3.S3BackendConfig{
		Client:    client,
		Bucket:    storeCfg.Bucket,
		KeyPrefix: storeCfg.KeyPrefix,
		Metrics:   metrics.NewCellMetrics("s3"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 store: %w", err)
	}

	logger.Info("S3 cell store initialized: bucket=%s, region=%s, prefix=%s",
		storeCfg.Bucket, storeCfg.Region, storeCfg.KeyPrefix)

	return backend, nil
}

// Runtime bundles a Host with the resources opened for it.
type Runtime struct {
	Host *engine.Host

	// Bus fans committed mutations out to subscribers. The journal, when
	// configured, is already subscribed.
	Bus *events.Bus

	// Caller is the configured default identity
	Caller engine.Identity

	journal *events.Journal
}

// Close closes the host (and its backend) and then the journal.
func (r *Runtime) Close() error {
	hostErr := r.Host.Close()
	if r.journal != nil {
		if err := r.journal.Close(); err != nil && hostErr == nil {
			return fmt.Errorf("close journal: %w", err)
		}
	}
	return hostErr
}

// CreateHost builds the engine Host described by cfg.
//
// This initializes, in order: the metrics registry (if enabled), the cell
// backend, the event bus and journal, and finally the Host itself.
//
// Parameters:
//   - ctx: Context for backend initialization
//   - cfg: Complete, validated configuration
//
// Returns:
//   - *Runtime: Host plus the resources to release with Close
//   - error: Configuration or initialization error
func CreateHost(ctx context.Context, cfg *Config) (*Runtime, error) {
	// ========================================================================
	// Step 1: Metrics
	// ========================================================================

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	caller, err := engine.ParseIdentity(cfg.Identity)
	if err != nil {
		return nil, fmt.Errorf("identity: %w", err)
	}

	// ========================================================================
	// Step 2: Backend
	// ========================================================================

	backend, err := CreateBackend(ctx, &cfg.Store)
	if err != nil {
		return nil, err
	}

	// ========================================================================
	// Step 3: Events
	// ========================================================================

	bus := events.NewBus()
	var journal *events.Journal
	if cfg.Events.Journal != "" {
		journal, err = events.OpenJournal(cfg.Events.Journal)
		if err != nil {
			_ = backend.Close()
			return nil, err
		}
		bus.Subscribe(journal)
	}

	// ========================================================================
	// Step 4: Host
	// ========================================================================

	host := engine.NewHost(backend, engine.HostOptions{
		CallBudget: cfg.Host.CallBudget,
		RateLimit:  cfg.Host.RateLimit,
		RateBurst:  cfg.Host.RateBurst,
		Notifier:   bus,
		Metrics:    metrics.NewEngineMetrics(),
	})

	return &Runtime{Host: host, Bus: bus, Caller: caller, journal: journal}, nil
}
