package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete cellfs configuration.
//
// This structure captures all configurable aspects of a cellfs host:
//   - Logging configuration
//   - Cell backend selection and configuration (backend-specific)
//   - Host call model (budget, admission rate)
//   - Metrics and event journal
//   - The default caller identity used by the CLI
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (CELLFS_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
//
// Backend Configuration Pattern:
// Each backend defines its own configuration type. The Store section carries
// one option map per backend type (store.memory, store.badger, store.s3) and
// only the map matching store.type is decoded by the factory.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging" json:"logging"`

	// Store selects and configures the cell backend
	Store StoreConfig `mapstructure:"store" yaml:"store" json:"store"`

	// Host configures the engine call model
	Host HostConfig `mapstructure:"host" yaml:"host" json:"host"`

	// Metrics controls Prometheus collection
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics" json:"metrics"`

	// Events configures mutation notifications
	Events EventsConfig `mapstructure:"events" yaml:"events" json:"events"`

	// Identity is the default caller identity (0x-prefixed, 20 bytes).
	// Empty means the anonymous identity.
	Identity string `mapstructure:"identity" yaml:"identity" json:"identity,omitempty" validate:"omitempty,identity"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" json:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" json:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" json:"output" validate:"required"`
}

// StoreConfig specifies cell backend configuration.
//
// The Type field determines which backend implementation is used.
// Only the corresponding type-specific configuration section is used.
type StoreConfig struct {
	// Type specifies which backend implementation to use
	// Valid values: memory, badger, s3
	Type string `mapstructure:"type" yaml:"type" json:"type" validate:"required,oneof=memory badger s3"`

	// Memory contains memory-specific configuration
	// Only used when Type = "memory"
	Memory map[string]any `mapstructure:"memory" yaml:"memory" json:"memory,omitempty"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger" yaml:"badger" json:"badger,omitempty"`

	// S3 contains S3-specific configuration
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3" yaml:"s3" json:"s3,omitempty"`
}

// HostConfig configures the engine Host.
type HostConfig struct {
	// CallBudget caps cell loads and stores per call (0 = unlimited)
	CallBudget uint64 `mapstructure:"call_budget" yaml:"call_budget" json:"call_budget"`

	// RateLimit is the sustained mutating calls per second (0 = unlimited)
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit" validate:"gte=0"`

	// RateBurst is the number of mutating calls admitted back to back
	RateBurst int `mapstructure:"rate_burst" yaml:"rate_burst" json:"rate_burst" validate:"gte=0"`
}

// MetricsConfig controls metrics collection.
type MetricsConfig struct {
	// Enabled initializes the Prometheus registry
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// Port is where `cellfs serve` exposes /metrics
	Port int `mapstructure:"port" yaml:"port" json:"port" validate:"omitempty,min=1,max=65535"`
}

// EventsConfig configures mutation notifications.
type EventsConfig struct {
	// Journal is a file every committed mutation is appended to as CBOR.
	// Empty disables the journal.
	Journal string `mapstructure:"journal" yaml:"journal" json:"journal,omitempty"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (CELLFS_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Configure viper
	setupViper(v, configPath)

	// Read configuration file if it exists
	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	// Unmarshal into config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply defaults for any missing values
	ApplyDefaults(&cfg)

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// envKeys lists the scalar keys that can be overridden from the environment.
// AutomaticEnv only applies to keys viper already knows about, so they are
// bound explicitly for the case where no config file sets them.
var envKeys = []string{
	"logging.level",
	"logging.format",
	"logging.output",
	"store.type",
	"host.call_budget",
	"host.rate_limit",
	"host.rate_burst",
	"metrics.enabled",
	"metrics.port",
	"events.journal",
	"identity",
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Set up environment variable support
	// Environment variables use CELLFS_ prefix and underscores
	// Example: CELLFS_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("CELLFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// Configure config file search
	if configPath != "" {
		// Use explicitly specified config file
		v.SetConfigFile(configPath)
	} else {
		// Use default location: $XDG_CONFIG_HOME/cellfs/config.{yaml,toml}
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml") // Primary format
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		// A missing file is acceptable - use defaults
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		// Other errors are problems
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	// Check XDG_CONFIG_HOME
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "cellfs")
	}

	// Fall back to ~/.config
	home, err := os.UserHomeDir()
	if err != nil {
		// If we can't get home dir, use current directory as last resort
		return "."
	}

	return filepath.Join(home, ".config", "cellfs")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	path := GetDefaultConfigPath()
	_, err := os.Stat(path)
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
