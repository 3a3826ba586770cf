// Package metrics provides Prometheus metrics collection for cellfs components.
//
// All metrics are optional - if the registry is not initialized, constructors
// return no-op implementations that have zero overhead. This allows the engine
// and the cell backends to run with or without metrics collection enabled.
//
// Usage:
//
//	// Initialize global registry (typically in main.go)
//	metrics.InitRegistry()
//
//	// Create metrics instances for components
//	engineMetrics := metrics.NewEngineMetrics()
//	cellMetrics := metrics.NewCellMetrics("badger")
//
//	// Or use nil for no-op behavior
//	host := engine.NewHost(backend, engine.HostOptions{})
package metrics

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// registry is the global Prometheus registry for all cellfs metrics
	// Protected by registryOnce for write-once, read-many pattern
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry.
//
// This must be called before creating any metrics instances. It's safe to call
// multiple times - subsequent calls are ignored.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
	})
}

// GetRegistry returns the global Prometheus registry, or nil if InitRegistry()
// has not been called.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled returns true if metrics collection is enabled.
func IsEnabled() bool {
	return GetRegistry() != nil
}

// coded is satisfied by errors that carry a stable, low-cardinality code name
// (engine.Error does). It keeps this package free of engine imports.
type coded interface {
	CodeName() string
}

// statusLabel maps an operation outcome to a metrics label value.
func statusLabel(err error) string {
	if err == nil {
		return "success"
	}
	var c coded
	if errors.As(err, &c) {
		return c.CodeName()
	}
	return "error"
}
