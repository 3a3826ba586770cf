package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/cellfs/pkg/engine"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()

	// identity accepts anything engine.ParseIdentity accepts
	_ = validate.RegisterValidation("identity", func(fl validator.FieldLevel) bool {
		_, err := engine.ParseIdentity(fl.Field().String())
		return err == nil
	})
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	// Run struct tag validation
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	// Custom validation rules that can't be expressed in tags
	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
//
// Only the section selected by store.type is checked; the other backend maps
// may hold stale or partial settings.
func validateCustomRules(cfg *Config) error {
	switch cfg.Store.Type {
	case "badger":
		opts, err := decodeBadgerOptions(cfg.Store.Badger)
		if err != nil {
			return fmt.Errorf("store.badger: %w", err)
		}
		if opts.DBPath == "" && !opts.InMemory {
			return fmt.Errorf("store.badger: db_path is required unless in_memory is set")
		}
	case "s3":
		opts, err := decodeS3Options(cfg.Store.S3)
		if err != nil {
			return fmt.Errorf("store.s3: %w", err)
		}
		if opts.Bucket == "" {
			return fmt.Errorf("store.s3: bucket is required")
		}
		if opts.Region == "" {
			return fmt.Errorf("store.s3: region is required")
		}
		if (opts.AccessKeyID == "") != (opts.SecretAccessKey == "") {
			return fmt.Errorf("store.s3: access_key_id and secret_access_key must be set together")
		}
	case "memory":
		if _, err := decodeMemoryOptions(cfg.Store.Memory); err != nil {
			return fmt.Errorf("store.memory: %w", err)
		}
	}

	if cfg.Host.RateLimit > 0 && cfg.Host.RateBurst < 1 {
		return fmt.Errorf("host: rate_burst must be at least 1 when rate_limit is set")
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		// Return the first validation error with context
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
