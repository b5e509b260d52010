// Package worker drains the ingestion queue into the audit store.
//
// The worker is the only consumer of the queue. It writes batches, falls back
// to per-event writes with exponential backoff when a batch is rejected, and
// abandons (logs and counts) events that still fail. Events the store rejects
// outright are abandoned without retries and do not count against the
// breaker. A store failure never stops the loop. A circuit breaker keeps
// events queued while the store is down instead of hammering it.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	dErrors "auditpipe/pkg/domain-errors"
	audit "auditpipe/pkg/platform/audit"
	"auditpipe/pkg/platform/audit/queue"
	"auditpipe/pkg/platform/sentinel"
)

// Worker consumes audit events from the queue and persists them.
type Worker struct {
	queue   *queue.Ring
	store   audit.Writer
	logger  *slog.Logger
	metrics *Metrics
	breaker *gobreaker.CircuitBreaker[struct{}]
	errLog  *rate.Limiter

	batchSize        int
	flushInterval    time.Duration
	maxRetries       int
	retryBackoff     time.Duration
	writeTimeout     time.Duration
	shutdownGrace    time.Duration
	breakerThreshold uint32
	breakerTimeout   time.Duration

	// pending holds events the breaker refused. Only the loop goroutine
	// touches it.
	pending []audit.Event

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool

	// Stats
	persisted  atomic.Int64
	failures   atomic.Int64
	retries    atomic.Int64
	abandoned  atomic.Int64
	suppressed atomic.Int64
}

// Option configures the Worker.
type Option func(*Worker)

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

// WithBatchSize sets the maximum number of events written per batch.
func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

// WithFlushInterval sets how often the queue is polled without a notification.
func WithFlushInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.flushInterval = d
		}
	}
}

// WithMaxRetries sets the per-event retry attempts after a batch failure.
func WithMaxRetries(n int) Option {
	return func(w *Worker) {
		if n >= 0 {
			w.maxRetries = n
		}
	}
}

// WithRetryBackoff sets the base retry backoff duration.
func WithRetryBackoff(d time.Duration) Option {
	return func(w *Worker) {
		w.retryBackoff = d
	}
}

// WithShutdownGrace bounds how long Stop spends draining the queue.
func WithShutdownGrace(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.shutdownGrace = d
		}
	}
}

// WithBreaker sets the consecutive failures that open the circuit and how
// long it stays open before a probe write is allowed.
func WithBreaker(threshold uint32, openFor time.Duration) Option {
	return func(w *Worker) {
		if threshold > 0 {
			w.breakerThreshold = threshold
		}
		if openFor > 0 {
			w.breakerTimeout = openFor
		}
	}
}

// New creates a worker. Call Start (or run it under a supervisor via Serve).
func New(q *queue.Ring, store audit.Writer, opts ...Option) *Worker {
	w := &Worker{
		queue:            q,
		store:            store,
		batchSize:        100,
		flushInterval:    250 * time.Millisecond,
		maxRetries:       3,
		retryBackoff:     100 * time.Millisecond,
		writeTimeout:     5 * time.Second,
		shutdownGrace:    10 * time.Second,
		breakerThreshold: 5,
		breakerTimeout:   30 * time.Second,
		errLog:           rate.NewLimiter(rate.Every(time.Second), 5),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "audit-store",
		MaxRequests: 1,
		Timeout:     w.breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= w.breakerThreshold
		},
		// a store that rejects one event is still healthy
		IsSuccessful: func(err error) bool {
			return err == nil || permanent(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if w.metrics != nil {
				w.metrics.SetBreakerState(to)
			}
			if w.logger != nil {
				w.logger.Warn("audit store circuit breaker state changed",
					"breaker", name,
					"from", from.String(),
					"to", to.String(),
				)
			}
		},
	})
	return w
}

// Start begins the drain loop in a background goroutine. Calling Start on a
// running worker is a no-op.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true

	go func(done chan struct{}) {
		defer close(done)
		w.run(ctx)
	}(w.done)
}

// Stop signals the loop to exit, drains what it can within the shutdown
// grace period, and waits for completion or ctx expiry.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	cancel, done := w.cancel, w.done
	w.running = false
	w.mu.Unlock()

	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Serve implements suture.Service. It returns once ctx is cancelled and the
// queue has been drained within the grace period.
func (w *Worker) Serve(ctx context.Context) error {
	w.run(ctx)
	return ctx.Err()
}

// String names the service in supervisor logs.
func (w *Worker) String() string { return "audit-worker" }

func (w *Worker) run(ctx context.Context) {
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.drain()
			return
		case <-w.queue.Ready():
			w.flush(ctx)
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

// flush writes queued events until the queue is empty, the circuit is open,
// or ctx is cancelled. Events held back by an open circuit are retried first.
func (w *Worker) flush(ctx context.Context) {
	for ctx.Err() == nil {
		if w.breaker.State() == gobreaker.StateOpen {
			return
		}
		if !w.writeNext(ctx) {
			return
		}
	}
}

func (w *Worker) drain() {
	if w.queue.Len() == 0 && len(w.pending) == 0 {
		return
	}
	if w.logger != nil {
		w.logger.Info("draining audit queue", "queued", w.queue.Len(), "held", len(w.pending))
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.shutdownGrace)
	defer cancel()

	for ctx.Err() == nil && w.breaker.State() != gobreaker.StateOpen {
		if !w.writeNext(ctx) {
			return
		}
	}

	if left := w.queue.Len() + len(w.pending); left > 0 && w.logger != nil {
		w.logger.Error("audit queue not fully drained before shutdown",
			"remaining", left,
			"breaker", w.breaker.State().String(),
		)
	}
}

// writeNext persists the held events or the next queued batch. It reports
// false when there was nothing to write.
func (w *Worker) writeNext(ctx context.Context) bool {
	batch := w.pending
	w.pending = nil
	if len(batch) == 0 {
		batch = w.queue.DequeueBatch(w.batchSize)
	}
	if len(batch) == 0 {
		return false
	}
	w.pending = w.persistBatch(ctx, batch)
	return true
}

// persistBatch writes batch and returns the events the breaker refused, which
// must be retried once the circuit closes.
func (w *Worker) persistBatch(ctx context.Context, batch []audit.Event) []audit.Event {
	start := time.Now()
	defer func() {
		if w.metrics != nil {
			w.metrics.ObserveBatchDuration(time.Since(start).Seconds())
			w.metrics.SetQueueDepth(w.queue.Len())
		}
	}()

	err := w.write(ctx, func(writeCtx context.Context) error {
		return w.store.InsertBatch(writeCtx, batch)
	})
	if err == nil {
		w.persisted.Add(int64(len(batch)))
		if w.metrics != nil {
			w.metrics.AddPersisted(len(batch))
		}
		return nil
	}
	if rejected(err) {
		return batch
	}

	w.recordFailure()
	if len(batch) > 1 && w.metrics != nil {
		w.metrics.IncBatchFallbacks()
	}

	// Write events one at a time so a single bad event cannot sink the rest.
	for i, event := range batch {
		if !w.persistWithRetry(ctx, event) {
			return batch[i:]
		}
	}
	return nil
}

// persistWithRetry writes a single event, retrying transient failures with
// exponential backoff. It returns false only when the breaker refused the
// write; an event that exhausts its retries or is rejected by the store is
// abandoned and counts as handled.
func (w *Worker) persistWithRetry(ctx context.Context, event audit.Event) bool {
	var lastErr error
	for attempt := 0; attempt <= w.maxRetries; attempt++ {
		if attempt > 0 {
			w.retries.Add(1)
			if w.metrics != nil {
				w.metrics.IncRetries()
			}
			backoff := w.retryBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
			case <-time.After(backoff):
			}
		}

		lastErr = w.write(ctx, func(writeCtx context.Context) error {
			return w.store.Insert(writeCtx, event)
		})
		if lastErr == nil {
			w.persisted.Add(1)
			if w.metrics != nil {
				w.metrics.AddPersisted(1)
			}
			return true
		}
		if rejected(lastErr) {
			return false
		}
		w.recordFailure()
		if permanent(lastErr) {
			break
		}
	}

	w.abandoned.Add(1)
	if w.metrics != nil {
		w.metrics.IncAbandoned()
	}
	w.logThrottled(ctx, "audit event abandoned after write failures",
		"event_id", event.ID.String(),
		"action", event.Action.String(),
		"resource_type", event.Resource.Type.String(),
		"resource_id", event.Resource.ID,
		"error", lastErr,
	)
	return true
}

func rejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// permanent reports write errors caused by the event itself. Retrying them
// cannot succeed.
func permanent(err error) bool {
	return dErrors.HasCode(err, dErrors.CodeValidation) || errors.Is(err, sentinel.ErrConflict)
}

// write runs fn through the breaker with a bounded context that survives
// cancellation of the loop context, so a shutdown does not abort an
// in-flight insert.
func (w *Worker) write(ctx context.Context, fn func(context.Context) error) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.writeTimeout)
	defer cancel()
	_, err := w.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, fn(writeCtx)
	})
	return err
}

func (w *Worker) recordFailure() {
	w.failures.Add(1)
	if w.metrics != nil {
		w.metrics.IncPersistFailures()
	}
}

func (w *Worker) logThrottled(ctx context.Context, msg string, args ...any) {
	if w.logger == nil {
		return
	}
	if !w.errLog.Allow() {
		w.suppressed.Add(1)
		return
	}
	if n := w.suppressed.Swap(0); n > 0 {
		args = append(args, "suppressed_since_last", n)
	}
	w.logger.ErrorContext(ctx, msg, args...)
}

// Stats returns worker statistics for monitoring.
func (w *Worker) Stats() Stats {
	return Stats{
		Persisted:       w.persisted.Load(),
		PersistFailures: w.failures.Load(),
		Retries:         w.retries.Load(),
		Abandoned:       w.abandoned.Load(),
		BreakerState:    w.breaker.State().String(),
	}
}

// Stats holds worker statistics.
type Stats struct {
	Persisted       int64  // Events durably written
	PersistFailures int64  // Failed write attempts (batch or single)
	Retries         int64  // Per-event retry attempts
	Abandoned       int64  // Events given up on after retries
	BreakerState    string // closed, half-open or open
}
