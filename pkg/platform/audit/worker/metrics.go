package worker

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
)

// Metrics holds Prometheus metrics for the persistence worker.
type Metrics struct {
	QueueDepth      prometheus.Gauge
	Persisted       prometheus.Counter
	PersistFailures prometheus.Counter
	Retries         prometheus.Counter
	Abandoned       prometheus.Counter
	BatchFallbacks  prometheus.Counter
	BatchDuration   prometheus.Histogram
	BreakerState    prometheus.Gauge
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// NewMetrics returns the singleton Metrics instance with worker metrics registered.
// Safe to call multiple times; metrics are only registered once.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "auditpipe_worker_queue_depth",
				Help: "Events waiting in the ingestion queue after the last batch",
			}),
			Persisted: promauto.NewCounter(prometheus.CounterOpts{
				Name: "auditpipe_worker_persisted_total",
				Help: "Total number of audit events written by the worker",
			}),
			PersistFailures: promauto.NewCounter(prometheus.CounterOpts{
				Name: "auditpipe_worker_persist_failures_total",
				Help: "Total number of failed write attempts (batch or single event)",
			}),
			Retries: promauto.NewCounter(prometheus.CounterOpts{
				Name: "auditpipe_worker_retries_total",
				Help: "Total number of per-event retry attempts",
			}),
			Abandoned: promauto.NewCounter(prometheus.CounterOpts{
				Name: "auditpipe_worker_abandoned_total",
				Help: "Total number of audit events abandoned after exhausting retries",
			}),
			BatchFallbacks: promauto.NewCounter(prometheus.CounterOpts{
				Name: "auditpipe_worker_batch_fallbacks_total",
				Help: "Total number of batches retried as individual writes",
			}),
			BatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "auditpipe_worker_batch_duration_seconds",
				Help:    "Time taken to persist one dequeued batch, including fallbacks",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			}),
			BreakerState: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "auditpipe_worker_circuit_breaker_state",
				Help: "Store circuit breaker state (0=closed, 1=half-open, 2=open)",
			}),
		}
	})
	return metricsInstance
}

// SetQueueDepth sets the current queue depth.
func (m *Metrics) SetQueueDepth(depth int) {
	m.QueueDepth.Set(float64(depth))
}

// AddPersisted adds n to the persisted counter.
func (m *Metrics) AddPersisted(n int) {
	m.Persisted.Add(float64(n))
}

// IncPersistFailures increments the persist failures counter.
func (m *Metrics) IncPersistFailures() {
	m.PersistFailures.Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	m.Retries.Inc()
}

// IncAbandoned increments the abandoned counter.
func (m *Metrics) IncAbandoned() {
	m.Abandoned.Inc()
}

// IncBatchFallbacks increments the batch fallback counter.
func (m *Metrics) IncBatchFallbacks() {
	m.BatchFallbacks.Inc()
}

// ObserveBatchDuration records the batch persistence latency.
func (m *Metrics) ObserveBatchDuration(durationSeconds float64) {
	m.BatchDuration.Observe(durationSeconds)
}

// SetBreakerState records the circuit breaker state.
func (m *Metrics) SetBreakerState(state gobreaker.State) {
	switch state {
	case gobreaker.StateOpen:
		m.BreakerState.Set(2)
	case gobreaker.StateHalfOpen:
		m.BreakerState.Set(1)
	default:
		m.BreakerState.Set(0)
	}
}
