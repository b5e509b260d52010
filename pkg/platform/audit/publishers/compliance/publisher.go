// Package compliance provides the synchronous, fail-closed audit write path.
//
// Emit blocks until the event is persisted. When a transaction is carried in
// ctx (see pkg/platform/tx) the write joins it, so the audit record commits or
// rolls back together with the business change. If the write fails, the
// caller's operation MUST fail.
package compliance

import (
	"context"
	"log/slog"
	"time"

	dErrors "auditpipe/pkg/domain-errors"
	audit "auditpipe/pkg/platform/audit"
)

// Publisher writes events synchronously with fail-closed semantics.
type Publisher struct {
	store   audit.Writer
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// New creates a compliance publisher.
func New(store audit.Writer, opts ...Option) *Publisher {
	p := &Publisher{
		store: store,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit validates and writes event before returning. Validation failures keep
// their code; store failures are wrapped as internal errors.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	start := time.Now()

	if err := event.Validate(); err != nil {
		return err
	}

	if err := p.store.Insert(ctx, event); err != nil {
		if p.metrics != nil {
			p.metrics.IncPersistFailures()
		}
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "CRITICAL: compliance audit write failed",
				"event_id", event.ID.String(),
				"action", event.Action.String(),
				"resource_type", event.Resource.Type.String(),
				"resource_id", event.Resource.ID,
				"error", err,
			)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "audit persistence failed")
	}

	if p.metrics != nil {
		p.metrics.ObservePersistDuration(time.Since(start).Seconds())
		p.metrics.IncEventsEmitted()
	}
	return nil
}
