package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EngineMetrics provides observability for namespace operations.
//
// This interface is optional - if not provided to the engine Host, operations
// proceed without metrics collection (zero overhead).
type EngineMetrics interface {
	// RecordOperation records a completed namespace operation with its name,
	// duration, and outcome. Failed operations are labelled with the engine
	// error code (e.g. "not_owner") so abort reasons can be told apart.
	RecordOperation(operation string, duration time.Duration, err error)

	// RecordBudget records how many cell operations a call consumed.
	RecordBudget(operation string, used uint64)

	// SetNamespaceCount updates the number of registered namespaces.
	SetNamespaceCount(count int)
}

// engineMetrics is the Prometheus implementation of EngineMetrics.
type engineMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	cellOpsPerCall    *prometheus.HistogramVec
	namespaces        prometheus.Gauge
}

// NewEngineMetrics creates a new Prometheus-backed EngineMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not
// called).
func NewEngineMetrics() EngineMetrics {
	if !IsEnabled() {
		return NewNoopEngineMetrics()
	}
	return newEngineMetrics(GetRegistry())
}

func newEngineMetrics(reg prometheus.Registerer) *engineMetrics {
	return &engineMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "cellfs_engine_operations_total",
				Help: "Total number of namespace operations by operation and status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "cellfs_engine_operation_duration_seconds",
				Help: "Duration of namespace operations in seconds",
				Buckets: []float64{
					0.0001, // 100µs
					0.0005, // 500µs
					0.001,  // 1ms
					0.005,  // 5ms
					0.01,   // 10ms
					0.05,   // 50ms
					0.1,    // 100ms
					0.5,    // 500ms
					1.0,    // 1s
				},
			},
			[]string{"operation"},
		),
		cellOpsPerCall: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cellfs_engine_cell_operations_per_call",
				Help:    "Number of cell loads and stores charged to a single call",
				Buckets: prometheus.ExponentialBuckets(4, 4, 8),
			},
			[]string{"operation"},
		),
		namespaces: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "cellfs_engine_namespaces",
				Help: "Current number of registered namespaces",
			},
		),
	}
}

func (m *engineMetrics) RecordOperation(operation string, duration time.Duration, err error) {
	m.operationsTotal.WithLabelValues(operation, statusLabel(err)).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *engineMetrics) RecordBudget(operation string, used uint64) {
	m.cellOpsPerCall.WithLabelValues(operation).Observe(float64(used))
}

func (m *engineMetrics) SetNamespaceCount(count int) {
	m.namespaces.Set(float64(count))
}

// NewNoopEngineMetrics returns an EngineMetrics that discards everything.
func NewNoopEngineMetrics() EngineMetrics {
	return noopEngineMetrics{}
}

type noopEngineMetrics struct{}

func (noopEngineMetrics) RecordOperation(operation string, duration time.Duration, err error) {}
func (noopEngineMetrics) RecordBudget(operation string, used uint64)                          {}
func (noopEngineMetrics) SetNamespaceCount(count int)                                         {}
