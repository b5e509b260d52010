package audit

//go:generate mockgen -source=store.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	id "auditpipe/pkg/domain"
)

// Writer appends events. The log is append-only: there is no update.
// Implementations join a transaction carried in ctx (see pkg/platform/tx).
type Writer interface {
	Insert(ctx context.Context, event Event) error
	// InsertBatch writes all events atomically: either all or none persist.
	InsertBatch(ctx context.Context, events []Event) error
}

// Reader serves filtered reads.
type Reader interface {
	// Get returns sentinel.ErrNotFound when no event has the id.
	Get(ctx context.Context, eventID id.EventID) (Event, error)
	Find(ctx context.Context, filter Filter, limit, offset int) ([]Event, error)
	Count(ctx context.Context, filter Filter) (int64, error)
	// FindAfter returns up to limit events strictly after the cursor in the
	// filter's sort order, using (timestamp, id) as the ordering key. A nil
	// cursor starts from the beginning.
	FindAfter(ctx context.Context, filter Filter, after *Cursor, limit int) ([]Event, error)
}

// Pruner removes expired events. Deletion is by age only.
type Pruner interface {
	// DeleteBefore removes up to limit events with timestamp strictly before
	// cutoff and returns how many were removed.
	DeleteBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
	// ListBefore returns up to limit of the oldest events strictly before cutoff.
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]Event, error)
	DeleteByIDs(ctx context.Context, ids []id.EventID) (int64, error)
}

// Store is the full persistence contract.
type Store interface {
	Writer
	Reader
	Pruner
}
