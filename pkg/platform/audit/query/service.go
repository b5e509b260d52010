// Package query serves filtered, paginated reads of the audit log.
//
// Every read validates its query before touching the store. Self-service
// reads are pinned to the caller's user id and return a projection type that
// has no IP address field.
package query

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	id "auditpipe/pkg/domain"
	dErrors "auditpipe/pkg/domain-errors"
	audit "auditpipe/pkg/platform/audit"
	"auditpipe/pkg/platform/sentinel"
	"auditpipe/pkg/platform/tracing"
)

// Service reads audit events.
type Service struct {
	store  audit.Reader
	logger *slog.Logger
	tracer trace.Tracer
}

// Option configures the Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New creates a query service over store.
func New(store audit.Reader, opts ...Option) *Service {
	s := &Service{
		store:  store,
		tracer: tracing.Tracer("auditpipe/audit/query"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Query returns one page of events for a privileged reader.
func (s *Service) Query(ctx context.Context, q audit.Query) (audit.Page[audit.EventProjection], error) {
	return find(ctx, s, "audit.query", q, audit.Project)
}

// QueryUserEvents returns one page of the events userID performed. Any actor
// filter in q is replaced by userID.
func (s *Service) QueryUserEvents(ctx context.Context, userID id.UserID, q audit.Query) (audit.Page[audit.RedactedEventProjection], error) {
	if userID.IsNil() {
		return audit.Page[audit.RedactedEventProjection]{}, dErrors.New(dErrors.CodeInvalidInput, "user ID required")
	}
	q.ActorUserID = userID
	return find(ctx, s, "audit.query_user_events", q, audit.ProjectRedacted)
}

// GetByID returns a single event with its details. A missing event is
// reported as found=false with a nil error.
func (s *Service) GetByID(ctx context.Context, eventID id.EventID) (detail audit.EventDetail, found bool, err error) {
	if eventID.IsNil() {
		return audit.EventDetail{}, false, dErrors.New(dErrors.CodeInvalidInput, "event ID required")
	}
	ctx, span := tracing.Start(ctx, s.tracer, "audit.get_by_id", attribute.String("event_id", eventID.String()))
	defer func() { tracing.End(span, err) }()

	event, err := s.store.Get(ctx, eventID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return audit.EventDetail{}, false, nil
	}
	if err != nil {
		return audit.EventDetail{}, false, s.storeError(ctx, err)
	}
	return audit.ProjectDetail(event), true, nil
}

func find[T any](ctx context.Context, s *Service, op string, q audit.Query, project func(audit.Event) T) (page audit.Page[T], err error) {
	q = q.WithDefaults()
	if err := q.Validate(); err != nil {
		return audit.Page[T]{}, err
	}
	filter := q.Filter()

	ctx, span := tracing.Start(ctx, s.tracer, op,
		attribute.Int("page", q.Page),
		attribute.Int("page_size", q.PageSize),
		attribute.String("sort", string(q.Sort)),
	)
	defer func() { tracing.End(span, err) }()

	total, err := s.store.Count(ctx, filter)
	if err != nil {
		return audit.Page[T]{}, s.storeError(ctx, err)
	}

	var events []audit.Event
	if int64(q.Offset()) < total {
		events, err = s.store.Find(ctx, filter, q.PageSize, q.Offset())
		if err != nil {
			return audit.Page[T]{}, s.storeError(ctx, err)
		}
	}

	items := make([]T, len(events))
	for i, e := range events {
		items[i] = project(e)
	}
	return audit.NewPage(items, total, q.Page, q.PageSize), nil
}

func (s *Service) storeError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "audit query timed out")
	}
	if s.logger != nil {
		s.logger.ErrorContext(ctx, "audit store read failed", "error", err)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "audit store unavailable")
}
