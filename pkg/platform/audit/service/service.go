// Package service is the single entry point business code uses to record and
// read audit events.
//
// LogAsync never blocks and never fails the caller: the event is queued and
// the persistence worker writes it later. LogSync writes inline, joining any
// transaction carried in ctx, and returns the failure. Compliance events
// (role changes, deletions, admin actions) belong on LogSync; sending them
// through LogAsync still records them but is counted and logged.
package service

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	id "auditpipe/pkg/domain"
	audit "auditpipe/pkg/platform/audit"
	"auditpipe/pkg/platform/audit/export"
	"auditpipe/pkg/platform/audit/query"
	"auditpipe/pkg/platform/audit/queue"
)

// SyncPublisher writes an event before returning.
type SyncPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the audit facade.
type Service struct {
	queue    *queue.Ring
	sync     SyncPublisher
	reader   audit.Reader
	query    *query.Service
	logger   *slog.Logger
	metrics  *Metrics
	warnLog  *rate.Limiter
	exportBS int
}

// Option configures the Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithExportBatchSize sets the batch size used when StreamExport is called
// with zero.
func WithExportBatchSize(n int) Option {
	return func(s *Service) {
		s.exportBS = n
	}
}

// New creates the facade. q is drained by a worker.Worker the caller owns.
func New(q *queue.Ring, sync SyncPublisher, reader audit.Reader, opts ...Option) *Service {
	s := &Service{
		queue:    q,
		sync:     sync,
		reader:   reader,
		warnLog:  rate.NewLimiter(rate.Every(10*time.Second), 1),
		exportBS: export.DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.query = query.New(reader, query.WithLogger(s.logger))
	return s
}

// LogAsync queues event and returns immediately. Invalid events are logged
// and discarded. When the queue is full the oldest queued event is dropped.
func (s *Service) LogAsync(event audit.Event) {
	if err := event.Validate(); err != nil {
		if s.metrics != nil {
			s.metrics.IncInvalid()
		}
		s.warn("discarding invalid audit event", "event_id", event.ID.String(), "error", err)
		return
	}

	if event.Category() == audit.CategoryCompliance {
		if s.metrics != nil {
			s.metrics.IncComplianceAsync()
		}
		s.warn("compliance audit event logged asynchronously; use LogSync",
			"action", event.Action.String(),
			"resource_type", event.Resource.Type.String(),
		)
	}

	if evicted := s.queue.Enqueue(event); evicted {
		if s.metrics != nil {
			s.metrics.IncOverflowDropped()
		}
		s.warn("audit queue full, dropped oldest event",
			"capacity", s.queue.Capacity(),
			"dropped_total", s.queue.Dropped(),
		)
	}
	if s.metrics != nil {
		s.metrics.IncEnqueued()
	}
}

// LogSync persists event before returning. The caller must fail its own
// operation when this returns an error.
func (s *Service) LogSync(ctx context.Context, event audit.Event) error {
	return s.sync.Emit(ctx, event)
}

func (s *Service) Query(ctx context.Context, q audit.Query) (audit.Page[audit.EventProjection], error) {
	return s.query.Query(ctx, q)
}

func (s *Service) QueryUserEvents(ctx context.Context, userID id.UserID, q audit.Query) (audit.Page[audit.RedactedEventProjection], error) {
	return s.query.QueryUserEvents(ctx, userID, q)
}

func (s *Service) GetByID(ctx context.Context, eventID id.EventID) (audit.EventDetail, bool, error) {
	return s.query.GetByID(ctx, eventID)
}

// StreamExport returns a lazy export of every event matching q. A zero
// batchSize takes the configured default.
func (s *Service) StreamExport(q audit.Query, batchSize int) *export.Stream {
	if batchSize == 0 {
		batchSize = s.exportBS
	}
	return export.NewStream(s.reader, q, batchSize)
}

func (s *Service) warn(msg string, args ...any) {
	if s.logger == nil || !s.warnLog.Allow() {
		return
	}
	s.logger.Warn(msg, args...)
}
