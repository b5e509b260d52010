package httptransport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	id "auditpipe/pkg/domain"
	dErrors "auditpipe/pkg/domain-errors"
	audit "auditpipe/pkg/platform/audit"
	"auditpipe/pkg/platform/audit/export"
	"auditpipe/pkg/platform/httputil"
	authmw "auditpipe/pkg/platform/middleware/auth"
	"auditpipe/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks AuditService,Sweeper

// AuditService is the audit facade as seen by the read API.
type AuditService interface {
	LogSync(ctx context.Context, event audit.Event) error
	Query(ctx context.Context, q audit.Query) (audit.Page[audit.EventProjection], error)
	QueryUserEvents(ctx context.Context, userID id.UserID, q audit.Query) (audit.Page[audit.RedactedEventProjection], error)
	GetByID(ctx context.Context, eventID id.EventID) (audit.EventDetail, bool, error)
	StreamExport(q audit.Query, batchSize int) *export.Stream
}

// Sweeper runs an on-demand retention sweep.
type Sweeper interface {
	SweepOnce(ctx context.Context) (int64, error)
}

// Handler serves the admin and self-service audit read endpoints.
type Handler struct {
	audit       AuditService
	sweeper     Sweeper
	validator   authmw.JWTValidator
	adminRole   string
	logger      *slog.Logger
	exportLimit int
	exportEvery time.Duration
}

// Option configures a Handler.
type Option func(*Handler)

// WithExportRateLimit caps exports per user to n per window. Zero disables
// the limit.
func WithExportRateLimit(n int, window time.Duration) Option {
	return func(h *Handler) {
		h.exportLimit = n
		h.exportEvery = window
	}
}

// New creates a Handler. sweeper may be nil when retention is disabled.
func New(svc AuditService, sweeper Sweeper, validator authmw.JWTValidator, adminRole string, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		audit:       svc,
		sweeper:     sweeper,
		validator:   validator,
		adminRole:   adminRole,
		logger:      logger,
		exportEvery: time.Minute,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the authenticated routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(h.validator, h.logger))
		r.Get("/me/audit/events", h.handleMyEvents)

		r.Route("/admin/audit", func(r chi.Router) {
			r.Use(authmw.RequireRole(h.adminRole, h.logger))
			r.Get("/events", h.handleListEvents)
			r.Get("/events/{id}", h.handleGetEvent)
			r.With(h.exportRateLimit()).Get("/export", h.handleExport)
			r.Post("/retention/sweep", h.handleSweep)
		})
	})
}

// exportRateLimit keys on the authenticated user so one admin cannot starve
// the database with back-to-back exports.
func (h *Handler) exportRateLimit() func(http.Handler) http.Handler {
	if h.exportLimit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(h.exportLimit, h.exportEvery,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return requestcontext.UserID(r.Context()).String(), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many exports, retry later"))
		}),
	)
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q, err := parseQuery(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	page, err := h.audit.Query(ctx, q)
	if err != nil {
		h.logFailure(ctx, "audit query failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) handleMyEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := httputil.RequireUserID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	q, err := parseQuery(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	page, err := h.audit.QueryUserEvents(ctx, userID, q)
	if err != nil {
		h.logFailure(ctx, "self-service audit query failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	eventID, err := id.ParseEventID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	detail, found, err := h.audit.GetByID(ctx, eventID)
	if err != nil {
		h.logFailure(ctx, "audit lookup failed", err)
		httputil.WriteError(w, err)
		return
	}
	if !found {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "audit event not found"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, detail)
}

// handleExport records the export itself before streaming. Once the first
// byte is sent a failure can only be logged and the body truncated.
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	values := r.URL.Query()

	format := values.Get("format")
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "json" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "format must be csv or json"))
		return
	}
	q, err := parseQuery(values)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	batchSize, err := parseInt(values, "batch_size")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	// paging is ignored by the stream; validate only the filters
	q.Page, q.PageSize = 0, 0
	if err := q.WithDefaults().Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	event, err := audit.NewEvent().
		FromContext(ctx).
		Action(audit.ActionExported).
		Resource(audit.ResourceAuditLog, "export", "").
		Detail("format", format).
		Detail("filters", values.Encode()).
		Detail("user_agent", requestcontext.UserAgent(ctx)).
		Build()
	if err == nil {
		err = h.audit.LogSync(ctx, event)
	}
	if err != nil {
		h.logFailure(ctx, "failed to record audit export", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record export"))
		return
	}

	stream := h.audit.StreamExport(q, batchSize)
	filename := fmt.Sprintf("audit-export-%s.%s", time.Now().UTC().Format("20060102T150405Z"), format)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	var writer export.Writer
	if format == "json" {
		w.Header().Set("Content-Type", "application/json")
		writer = export.NewJSONArrayWriter(w)
	} else {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		writer = export.NewCSVWriter(w)
	}
	w.WriteHeader(http.StatusOK)

	n, err := export.WriteAll(ctx, stream, &flushingWriter{Writer: writer, rc: http.NewResponseController(w)})
	if err != nil {
		h.logger.ErrorContext(ctx, "audit export aborted",
			"error", err,
			"rows_written", n,
			"request_id", requestcontext.RequestID(ctx),
		)
		return
	}
	h.logger.InfoContext(ctx, "audit export completed",
		"format", format,
		"rows", n,
		"request_id", requestcontext.RequestID(ctx),
	)
}

type sweepResponse struct {
	Deleted int64 `json:"deleted"`
}

func (h *Handler) handleSweep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sweeper == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "retention is disabled"))
		return
	}

	deleted, err := h.sweeper.SweepOnce(ctx)
	if err != nil {
		h.logFailure(ctx, "manual retention sweep failed", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "retention sweep failed"))
		return
	}

	event, err := audit.NewEvent().
		FromContext(ctx).
		Action(audit.ActionAdminRetentionPurge).
		Resource(audit.ResourceAuditLog, "retention", "").
		Detail("deleted", deleted).
		Build()
	if err == nil {
		err = h.audit.LogSync(ctx, event)
	}
	if err != nil {
		// the rows are already gone; report the sweep but surface the gap
		h.logger.ErrorContext(ctx, "CRITICAL: retention purge not recorded",
			"error", err,
			"deleted", deleted,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	httputil.WriteJSON(w, http.StatusOK, sweepResponse{Deleted: deleted})
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	log := h.logger.ErrorContext
	if !dErrors.HasCode(err, dErrors.CodeInternal) && !dErrors.HasCode(err, dErrors.CodeTimeout) {
		log = h.logger.WarnContext
	}
	log(ctx, msg,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}

// flushingWriter pushes each batch to the client as soon as it is encoded.
type flushingWriter struct {
	export.Writer
	rc *http.ResponseController
}

func (f *flushingWriter) WriteBatch(batch []audit.EventProjection) error {
	if err := f.Writer.WriteBatch(batch); err != nil {
		return err
	}
	if err := f.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}
