// Package export streams the audit log in bounded batches and renders it as
// CSV or as a JSON array.
package export

import (
	"context"
	"iter"

	audit "auditpipe/pkg/platform/audit"
)

const (
	DefaultBatchSize = 100
	MaxBatchSize     = 1000
)

// Stream is a lazily evaluated export of every event matching a query.
// Pagination fields of the query are ignored.
type Stream struct {
	store     audit.Reader
	query     audit.Query
	batchSize int
}

// NewStream creates a stream. batchSize is clamped to [1, MaxBatchSize];
// zero or negative takes DefaultBatchSize.
func NewStream(store audit.Reader, q audit.Query, batchSize int) *Stream {
	switch {
	case batchSize <= 0:
		batchSize = DefaultBatchSize
	case batchSize > MaxBatchSize:
		batchSize = MaxBatchSize
	}
	q.Page, q.PageSize = 0, 0
	return &Stream{store: store, query: q.WithDefaults(), batchSize: batchSize}
}

// BatchSize reports the effective batch size.
func (s *Stream) BatchSize() int { return s.batchSize }

// Batches yields projected events one batch at a time. Each call starts from
// the beginning. Iteration stops after the first error, which is yielded with
// a nil batch.
func (s *Stream) Batches(ctx context.Context) iter.Seq2[[]audit.EventProjection, error] {
	return func(yield func([]audit.EventProjection, error) bool) {
		if err := s.query.Validate(); err != nil {
			yield(nil, err)
			return
		}
		filter := s.query.Filter()

		var cursor *audit.Cursor
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			events, err := s.store.FindAfter(ctx, filter, cursor, s.batchSize)
			if err != nil {
				yield(nil, err)
				return
			}
			if len(events) == 0 {
				return
			}

			batch := make([]audit.EventProjection, len(events))
			for i, e := range events {
				batch[i] = audit.Project(e)
			}
			if !yield(batch, nil) {
				return
			}
			if len(events) < s.batchSize {
				return
			}
			next := audit.CursorOf(events[len(events)-1])
			cursor = &next
		}
	}
}

// Writer renders batches into an output format.
type Writer interface {
	WriteBatch(batch []audit.EventProjection) error
	// Close completes the document. It must be called even when no batch
	// was written.
	Close() error
}

// WriteAll drains stream into w and closes w. It returns the number of
// events written.
func WriteAll(ctx context.Context, stream *Stream, w Writer) (int, error) {
	written := 0
	for batch, err := range stream.Batches(ctx) {
		if err != nil {
			return written, err
		}
		if err := w.WriteBatch(batch); err != nil {
			return written, err
		}
		written += len(batch)
	}
	return written, w.Close()
}
