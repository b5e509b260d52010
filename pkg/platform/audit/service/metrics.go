package service

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit facade.
type Metrics struct {
	Enqueued        prometheus.Counter
	OverflowDropped prometheus.Counter
	ComplianceAsync prometheus.Counter
	Invalid         prometheus.Counter
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// NewMetrics returns the singleton Metrics instance.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			Enqueued: promauto.NewCounter(prometheus.CounterOpts{
				Name: "auditpipe_service_enqueued_total",
				Help: "Total number of audit events accepted by LogAsync",
			}),
			OverflowDropped: promauto.NewCounter(prometheus.CounterOpts{
				Name: "auditpipe_service_overflow_dropped_total",
				Help: "Queued audit events evicted because the queue was full",
			}),
			ComplianceAsync: promauto.NewCounter(prometheus.CounterOpts{
				Name: "auditpipe_service_compliance_async_total",
				Help: "Compliance-category audit events sent through LogAsync",
			}),
			Invalid: promauto.NewCounter(prometheus.CounterOpts{
				Name: "auditpipe_service_invalid_total",
				Help: "Audit events discarded by LogAsync because they failed validation",
			}),
		}
	})
	return metricsInstance
}

func (m *Metrics) IncEnqueued()        { m.Enqueued.Inc() }
func (m *Metrics) IncOverflowDropped() { m.OverflowDropped.Inc() }
func (m *Metrics) IncComplianceAsync() { m.ComplianceAsync.Inc() }
func (m *Metrics) IncInvalid()         { m.Invalid.Inc() }
