package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CellMetrics provides observability for cell backend transactions.
type CellMetrics interface {
	// RecordTransaction records a committed or aborted transaction.
	//
	// Parameters:
	//   - kind: "update" or "view"
	//   - duration: Time spent inside the backend, callback included
	//   - dirty: Number of cells written by the transaction (0 for views)
	//   - err: Error if the transaction aborted, nil if it committed
	RecordTransaction(kind string, duration time.Duration, dirty int, err error)
}

type cellMetrics struct {
	backend             string
	transactionsTotal   *prometheus.CounterVec
	transactionDuration *prometheus.HistogramVec
	dirtyCells          prometheus.Histogram
}

// NewCellMetrics creates a Prometheus-backed CellMetrics labelled with the
// backend name. Returns a no-op implementation if metrics are not enabled.
func NewCellMetrics(backend string) CellMetrics {
	if !IsEnabled() {
		return NewNoopCellMetrics()
	}
	return newCellMetrics(GetRegistry(), backend)
}

func newCellMetrics(reg prometheus.Registerer, backend string) *cellMetrics {
	return &cellMetrics{
		backend: backend,
		transactionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "cellfs_cell_transactions_total",
				Help: "Total number of cell backend transactions by backend, kind, and status",
			},
			[]string{"backend", "kind", "status"},
		),
		transactionDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "cellfs_cell_transaction_duration_seconds",
				Help: "Duration of cell backend transactions in seconds",
				Buckets: []float64{
					0.0001, // 100µs
					0.001,  // 1ms
					0.01,   // 10ms
					0.1,    // 100ms
					1.0,    // 1s
					5.0,    // 5s
				},
			},
			[]string{"backend", "kind"},
		),
		dirtyCells: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:        "cellfs_cell_dirty_cells_per_commit",
				Help:        "Number of cells written by a committed transaction",
				Buckets:     prometheus.ExponentialBuckets(1, 4, 8),
				ConstLabels: prometheus.Labels{"backend": backend},
			},
		),
	}
}

func (m *cellMetrics) RecordTransaction(kind string, duration time.Duration, dirty int, err error) {
	m.transactionsTotal.WithLabelValues(m.backend, kind, statusLabel(err)).Inc()
	m.transactionDuration.WithLabelValues(m.backend, kind).Observe(duration.Seconds())
	if err == nil && dirty > 0 {
		m.dirtyCells.Observe(float64(dirty))
	}
}

// NewNoopCellMetrics returns a CellMetrics that discards everything.
func NewNoopCellMetrics() CellMetrics {
	return noopCellMetrics{}
}

type noopCellMetrics struct{}

func (noopCellMetrics) RecordTransaction(kind string, duration time.Duration, dirty int, err error) {
}
