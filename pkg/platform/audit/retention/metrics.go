package retention

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the retention sweeper.
type Metrics struct {
	Deleted       prometheus.Counter
	Sweeps        *prometheus.CounterVec
	SweepDuration prometheus.Histogram
	LockSkipped   prometheus.Counter
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// NewMetrics returns the singleton Metrics instance.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			Deleted: promauto.NewCounter(prometheus.CounterOpts{
				Name: "auditpipe_retention_deleted_total",
				Help: "Total number of audit events removed by retention sweeps",
			}),
			Sweeps: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "auditpipe_retention_sweeps_total",
				Help: "Retention sweeps by result",
			}, []string{"result"}),
			SweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "auditpipe_retention_sweep_duration_seconds",
				Help:    "Duration of retention sweeps",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			}),
			LockSkipped: promauto.NewCounter(prometheus.CounterOpts{
				Name: "auditpipe_retention_lock_skipped_total",
				Help: "Sweeps skipped because another replica held the lock",
			}),
		}
	})
	return metricsInstance
}

// ObserveSweep records one completed or failed sweep.
func (m *Metrics) ObserveSweep(seconds float64, deleted int64, err error) {
	m.SweepDuration.Observe(seconds)
	m.Deleted.Add(float64(deleted))
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Sweeps.WithLabelValues(result).Inc()
}

func (m *Metrics) IncLockSkipped() {
	m.LockSkipped.Inc()
}
