package compliance

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for synchronous audit writes.
type Metrics struct {
	EventsEmitted   prometheus.Counter
	PersistFailures prometheus.Counter
	PersistDuration prometheus.Histogram
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// NewMetrics returns the singleton Metrics instance.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			EventsEmitted: promauto.NewCounter(prometheus.CounterOpts{
				Name: "auditpipe_sync_events_emitted_total",
				Help: "Total number of audit events written on the synchronous path",
			}),
			PersistFailures: promauto.NewCounter(prometheus.CounterOpts{
				Name: "auditpipe_sync_persist_failures_total",
				Help: "Total number of synchronous audit writes that failed",
			}),
			PersistDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "auditpipe_sync_persist_duration_seconds",
				Help:    "Latency of synchronous audit writes",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			}),
		}
	})
	return metricsInstance
}

func (m *Metrics) IncEventsEmitted() {
	m.EventsEmitted.Inc()
}

func (m *Metrics) IncPersistFailures() {
	m.PersistFailures.Inc()
}

func (m *Metrics) ObservePersistDuration(seconds float64) {
	m.PersistDuration.Observe(seconds)
}
