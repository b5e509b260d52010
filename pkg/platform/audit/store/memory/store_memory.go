// Package memory is an in-process audit store for tests and local runs
// without a database. It honours the same ordering and filter semantics as
// the Postgres store.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	id "auditpipe/pkg/domain"
	dErrors "auditpipe/pkg/domain-errors"
	audit "auditpipe/pkg/platform/audit"
	"auditpipe/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	events map[id.EventID]audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[id.EventID]audit.Event)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[id.EventID]audit.Event)
}

// Len returns the number of stored events.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Insert returns sentinel.ErrConflict when the id is already stored.
func (s *InMemoryStore) Insert(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[event.ID]; ok {
		return fmt.Errorf("audit event %s already stored: %w", event.ID, sentinel.ErrConflict)
	}
	s.events[event.ID] = clone(event)
	return nil
}

// InsertBatch stores all events or none. A repeated id, stored or within the
// batch, fails the whole batch with sentinel.ErrConflict.
func (s *InMemoryStore) InsertBatch(_ context.Context, events []audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[id.EventID]struct{}, len(events))
	for _, e := range events {
		_, stored := s.events[e.ID]
		_, repeated := seen[e.ID]
		if stored || repeated {
			return fmt.Errorf("audit batch repeats id %s: %w", e.ID, sentinel.ErrConflict)
		}
		seen[e.ID] = struct{}{}
	}
	for _, e := range events {
		s.events[e.ID] = clone(e)
	}
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, eventID id.EventID) (audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[eventID]
	if !ok {
		return audit.Event{}, sentinel.ErrNotFound
	}
	return clone(e), nil
}

func (s *InMemoryStore) Find(_ context.Context, filter audit.Filter, limit, offset int) ([]audit.Event, error) {
	if offset < 0 || limit < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "limit and offset must not be negative")
	}
	matched := s.sorted(filter)
	if offset >= len(matched) {
		return []audit.Event{}, nil
	}
	end := min(offset+limit, len(matched))
	return matched[offset:end], nil
}

func (s *InMemoryStore) Count(_ context.Context, filter audit.Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, e := range s.events {
		if filter.Matches(e) {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) FindAfter(_ context.Context, filter audit.Filter, after *audit.Cursor, limit int) ([]audit.Event, error) {
	matched := s.sorted(filter)
	start := 0
	if after != nil {
		start = len(matched)
		for i, e := range matched {
			c := compareKey(e.Timestamp, e.ID, after.Timestamp, after.ID)
			if (filter.Sort == audit.SortAsc && c > 0) || (filter.Sort != audit.SortAsc && c < 0) {
				start = i
				break
			}
		}
	}
	end := min(start+limit, len(matched))
	return matched[start:end], nil
}

func (s *InMemoryStore) ListBefore(_ context.Context, cutoff time.Time, limit int) ([]audit.Event, error) {
	expired := s.sorted(audit.Filter{Sort: audit.SortAsc})
	out := make([]audit.Event, 0, limit)
	for _, e := range expired {
		if !e.Timestamp.Before(cutoff) || len(out) == limit {
			break
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *InMemoryStore) DeleteByIDs(_ context.Context, ids []id.EventID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, eventID := range ids {
		if _, ok := s.events[eventID]; ok {
			delete(s.events, eventID)
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) DeleteBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	expired, err := s.ListBefore(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}
	ids := make([]id.EventID, len(expired))
	for i, e := range expired {
		ids[i] = e.ID
	}
	return s.DeleteByIDs(ctx, ids)
}

// sorted returns matching events ordered by (timestamp, id) in the filter's
// direction.
func (s *InMemoryStore) sorted(filter audit.Filter) []audit.Event {
	s.mu.RLock()
	matched := make([]audit.Event, 0, len(s.events))
	for _, e := range s.events {
		if filter.Matches(e) {
			matched = append(matched, clone(e))
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b audit.Event) int {
		c := compareKey(a.Timestamp, a.ID, b.Timestamp, b.ID)
		if filter.Sort == audit.SortAsc {
			return c
		}
		return -c
	})
	return matched
}

func compareKey(ta time.Time, ia id.EventID, tb time.Time, ib id.EventID) int {
	if c := ta.Compare(tb); c != 0 {
		return c
	}
	return bytes.Compare(ia[:], ib[:])
}

func clone(e audit.Event) audit.Event {
	e.Details = maps.Clone(e.Details)
	return e
}
