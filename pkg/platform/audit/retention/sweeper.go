// Package retention deletes audit events older than the retention horizon.
//
// A sweep computes cutoff = now - horizon and deletes strictly older events in
// bounded batches until a short batch signals there is nothing left. Batches
// are paced by a rate limiter so a large backlog does not monopolize the
// database. With an Archiver configured each batch is handed to it before
// deletion; with a Locker only one replica sweeps per cycle.
package retention

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	id "auditpipe/pkg/domain"
	audit "auditpipe/pkg/platform/audit"
	"auditpipe/pkg/platform/sentinel"
)

//go:generate mockgen -source=sweeper.go -destination=mocks/mocks.go -package=mocks

const lockKey = "auditpipe:retention:sweep"

// Archiver receives each batch of expired events before it is deleted. A
// failed archive aborts the sweep so nothing is deleted unarchived.
type Archiver interface {
	Archive(ctx context.Context, events []audit.Event) error
}

// Sweeper periodically prunes expired audit events.
type Sweeper struct {
	store    audit.Pruner
	archiver Archiver
	locker   Locker
	logger   *slog.Logger
	metrics  *Metrics
	limiter  *rate.Limiter
	now      func() time.Time

	horizon   time.Duration
	interval  time.Duration
	batchSize int
}

// Option configures the Sweeper.
type Option func(*Sweeper)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

// WithHorizon sets how long events are kept.
func WithHorizon(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.horizon = d
		}
	}
}

// WithInterval sets the time between sweeps.
func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithBatchSize bounds the rows removed per delete statement.
func WithBatchSize(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithBatchRate paces delete batches. A zero limit disables pacing.
func WithBatchRate(limit rate.Limit, burst int) Option {
	return func(s *Sweeper) {
		if limit <= 0 {
			limit = rate.Inf
		}
		s.limiter = rate.NewLimiter(limit, max(burst, 1))
	}
}

func WithArchiver(a Archiver) Option {
	return func(s *Sweeper) {
		s.archiver = a
	}
}

func WithLocker(l Locker) Option {
	return func(s *Sweeper) {
		s.locker = l
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		s.now = now
	}
}

// New creates a sweeper. Defaults: 365 day horizon, hourly sweeps, 500 rows
// per batch, 10 batches per second.
func New(store audit.Pruner, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:     store,
		now:       time.Now,
		horizon:   365 * 24 * time.Hour,
		interval:  time.Hour,
		batchSize: 500,
		limiter:   rate.NewLimiter(rate.Limit(10), 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve implements suture.Service. It sweeps immediately, then every
// interval. A failed sweep is logged and the next one still runs.
func (s *Sweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil && s.logger != nil {
			s.logger.ErrorContext(ctx, "audit retention sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) String() string { return "audit-retention-sweeper" }

// SweepOnce runs a single sweep and returns the number of deleted events.
// When another replica holds the sweep lock it returns zero and no error.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, lockKey, s.interval)
		if errors.Is(err, sentinel.ErrLockHeld) {
			if s.metrics != nil {
				s.metrics.IncLockSkipped()
			}
			if s.logger != nil {
				s.logger.DebugContext(ctx, "audit retention sweep skipped, lock held elsewhere")
			}
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil && s.logger != nil {
				s.logger.WarnContext(ctx, "failed to release retention lock", "error", err)
			}
		}()
	}

	start := time.Now()
	cutoff := s.now().UTC().Add(-s.horizon)
	deleted, err := s.sweep(ctx, cutoff)

	if s.metrics != nil {
		s.metrics.ObserveSweep(time.Since(start).Seconds(), deleted, err)
	}
	if err != nil {
		return deleted, err
	}
	if s.logger != nil && deleted > 0 {
		s.logger.InfoContext(ctx, "audit retention sweep completed",
			"deleted", deleted,
			"cutoff", cutoff,
			"duration", time.Since(start),
		)
	}
	return deleted, nil
}

func (s *Sweeper) sweep(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return total, err
		}
		n, err := s.deleteBatch(ctx, cutoff)
		total += n
		if err != nil {
			return total, err
		}
		if n < int64(s.batchSize) {
			return total, nil
		}
	}
}

func (s *Sweeper) deleteBatch(ctx context.Context, cutoff time.Time) (int64, error) {
	if s.archiver == nil {
		return s.store.DeleteBefore(ctx, cutoff, s.batchSize)
	}

	expired, err := s.store.ListBefore(ctx, cutoff, s.batchSize)
	if err != nil || len(expired) == 0 {
		return 0, err
	}
	if err := s.archiver.Archive(ctx, expired); err != nil {
		return 0, err
	}
	ids := make([]id.EventID, len(expired))
	for i, e := range expired {
		ids[i] = e.ID
	}
	if _, err := s.store.DeleteByIDs(ctx, ids); err != nil {
		return 0, err
	}
	// Rows a concurrent delete already removed still count toward the batch.
	return int64(len(expired)), nil
}
