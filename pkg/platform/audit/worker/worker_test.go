package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	id "auditpipe/pkg/domain"
	dErrors "auditpipe/pkg/domain-errors"
	audit "auditpipe/pkg/platform/audit"
	"auditpipe/pkg/platform/audit/mocks"
	"auditpipe/pkg/platform/audit/queue"
	"auditpipe/pkg/platform/audit/store/memory"
)

var errStoreDown = errors.New("store down")

var errMalformed = dErrors.New(dErrors.CodeValidation, "audit details are not serializable")

// flakyStore wraps the memory store and fails writes for poisoned events or
// while down is set.
type flakyStore struct {
	*memory.InMemoryStore
	mu       sync.Mutex
	poisoned map[id.EventID]error
	down     atomic.Bool
	inserts  atomic.Int64
}

func newFlakyStore() *flakyStore {
	return &flakyStore{InMemoryStore: memory.NewInMemoryStore(), poisoned: map[id.EventID]error{}}
}

// poison makes every write of eventID fail with a transient error.
func (f *flakyStore) poison(eventID id.EventID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.poisoned[eventID] = errStoreDown
}

// corrupt makes every write of eventID fail the way an unserializable
// payload does.
func (f *flakyStore) corrupt(eventID id.EventID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.poisoned[eventID] = errMalformed
}

func (f *flakyStore) poisonOf(eventID id.EventID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.poisoned[eventID]
}

func (f *flakyStore) Insert(ctx context.Context, event audit.Event) error {
	f.inserts.Add(1)
	if f.down.Load() {
		return errStoreDown
	}
	if err := f.poisonOf(event.ID); err != nil {
		return err
	}
	return f.InMemoryStore.Insert(ctx, event)
}

func (f *flakyStore) InsertBatch(ctx context.Context, events []audit.Event) error {
	if f.down.Load() {
		return errStoreDown
	}
	for _, e := range events {
		if err := f.poisonOf(e.ID); err != nil {
			return err
		}
	}
	return f.InMemoryStore.InsertBatch(ctx, events)
}

func newEvent(t *testing.T) audit.Event {
	t.Helper()
	e, err := audit.NewEvent().
		Action(audit.ActionUpdated).
		Resource(audit.ResourceProject, "proj-1", "Apollo").
		Build()
	require.NoError(t, err)
	return e
}

func fastOptions(extra ...Option) []Option {
	return append([]Option{
		WithFlushInterval(5 * time.Millisecond),
		WithRetryBackoff(time.Millisecond),
		WithMaxRetries(2),
	}, extra...)
}

func TestWorker_PersistsQueuedEvents(t *testing.T) {
	q := queue.NewRing(64)
	store := memory.NewInMemoryStore()
	w := New(q, store, fastOptions(WithBatchSize(4))...)
	w.Start()
	t.Cleanup(func() { _ = w.Stop(context.Background()) })

	events := make([]audit.Event, 10)
	for i := range events {
		events[i] = newEvent(t)
		q.Enqueue(events[i])
	}

	require.Eventually(t, func() bool { return store.Len() == 10 }, time.Second, 5*time.Millisecond)
	for _, e := range events {
		got, err := store.Get(context.Background(), e.ID)
		require.NoError(t, err)
		assert.Equal(t, e.ID, got.ID)
	}
	assert.Equal(t, int64(10), w.Stats().Persisted)
	assert.Zero(t, w.Stats().Abandoned)
}

// TestWorker_BatchFailureFallsBackToSingleWrites verifies a rejected batch is
// retried one event at a time.
func TestWorker_BatchFailureFallsBackToSingleWrites(t *testing.T) {
	ctrl := gomock.NewController(t)
	writer := mocks.NewMockWriter(ctrl)

	q := queue.NewRing(16)
	for range 3 {
		q.Enqueue(newEvent(t))
	}

	var singles atomic.Int64
	writer.EXPECT().InsertBatch(gomock.Any(), gomock.Len(3)).Return(errStoreDown).Times(1)
	writer.EXPECT().Insert(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, audit.Event) error {
			singles.Add(1)
			return nil
		}).Times(3)

	w := New(q, writer, fastOptions()...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, w.Serve(ctx), context.Canceled)

	assert.Equal(t, int64(3), singles.Load())
	stats := w.Stats()
	assert.Equal(t, int64(3), stats.Persisted)
	assert.Equal(t, int64(1), stats.PersistFailures)
	assert.Zero(t, stats.Abandoned)
}

// TestWorker_AbandonsPoisonedEventAndContinues verifies an event that keeps
// failing is given up on after its retries while its neighbours persist and
// the loop keeps consuming.
func TestWorker_AbandonsPoisonedEventAndContinues(t *testing.T) {
	q := queue.NewRing(64)
	store := newFlakyStore()
	w := New(q, store, fastOptions(WithBreaker(100, time.Minute))...)
	w.Start()
	t.Cleanup(func() { _ = w.Stop(context.Background()) })

	bad := newEvent(t)
	store.poison(bad.ID)
	good1, good2 := newEvent(t), newEvent(t)
	q.Enqueue(good1)
	q.Enqueue(bad)
	q.Enqueue(good2)

	require.Eventually(t, func() bool { return w.Stats().Abandoned == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return store.Len() == 2 }, time.Second, 5*time.Millisecond)

	// the loop is still alive after the abandonment
	later := newEvent(t)
	q.Enqueue(later)
	require.Eventually(t, func() bool { return store.Len() == 3 }, time.Second, 5*time.Millisecond)

	_, err := store.Get(context.Background(), bad.ID)
	assert.Error(t, err)
	assert.Equal(t, int64(2), w.Stats().Retries)
}

// TestWorker_MalformedEventDoesNotTripBreaker verifies, with the default retry
// and breaker settings, that an event the store rejects outright is abandoned
// without retries and the events behind it still persist.
func TestWorker_MalformedEventDoesNotTripBreaker(t *testing.T) {
	q := queue.NewRing(64)
	store := newFlakyStore()
	w := New(q, store, WithFlushInterval(5*time.Millisecond), WithRetryBackoff(time.Millisecond))
	w.Start()
	t.Cleanup(func() { _ = w.Stop(context.Background()) })

	bad := newEvent(t)
	store.corrupt(bad.ID)
	q.Enqueue(bad)
	for range 5 {
		q.Enqueue(newEvent(t))
	}

	require.Eventually(t, func() bool { return store.Len() == 5 }, time.Second, 5*time.Millisecond)
	stats := w.Stats()
	assert.Equal(t, "closed", stats.BreakerState)
	assert.Equal(t, int64(1), stats.Abandoned)
	assert.Equal(t, int64(5), stats.Persisted)
	assert.Zero(t, stats.Retries)
}

// TestWorker_DuplicateIDIsAbandoned verifies a conflict on a stored id is not
// retried.
func TestWorker_DuplicateIDIsAbandoned(t *testing.T) {
	q := queue.NewRing(16)
	store := memory.NewInMemoryStore()
	dup := newEvent(t)
	require.NoError(t, store.Insert(context.Background(), dup))

	w := New(q, store, fastOptions()...)
	q.Enqueue(dup)
	q.Enqueue(newEvent(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, w.Serve(ctx), context.Canceled)

	assert.Equal(t, 2, store.Len())
	stats := w.Stats()
	assert.Equal(t, int64(1), stats.Abandoned)
	assert.Zero(t, stats.Retries)
	assert.Equal(t, "closed", stats.BreakerState)
}

// TestWorker_OpenBreakerKeepsEventsQueued verifies nothing is abandoned while
// the circuit is open and held events are written once the store recovers.
func TestWorker_OpenBreakerKeepsEventsQueued(t *testing.T) {
	q := queue.NewRing(64)
	store := newFlakyStore()
	store.down.Store(true)

	w := New(q, store, fastOptions(WithBreaker(1, 50*time.Millisecond))...)
	w.Start()
	t.Cleanup(func() { _ = w.Stop(context.Background()) })

	for range 5 {
		q.Enqueue(newEvent(t))
	}

	require.Eventually(t, func() bool { return w.Stats().BreakerState != "closed" }, time.Second, 5*time.Millisecond)
	assert.Zero(t, w.Stats().Abandoned)
	assert.Zero(t, store.Len())

	store.down.Store(false)
	require.Eventually(t, func() bool { return store.Len() == 5 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, w.Stats().Abandoned)
}

// TestWorker_StopDrainsQueue verifies events enqueued before Stop are
// persisted before Stop returns.
func TestWorker_StopDrainsQueue(t *testing.T) {
	q := queue.NewRing(256)
	store := memory.NewInMemoryStore()
	w := New(q, store, WithFlushInterval(time.Hour), WithBatchSize(10))
	w.Start()

	for range 100 {
		q.Enqueue(newEvent(t))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.Stop(ctx))

	assert.Equal(t, 100, store.Len())
	assert.Zero(t, q.Len())
}

// TestWorker_DrainsClosedQueue verifies the shutdown order: a closed queue
// refuses late events while the worker still persists what was queued.
func TestWorker_DrainsClosedQueue(t *testing.T) {
	q := queue.NewRing(64)
	store := memory.NewInMemoryStore()
	w := New(q, store, WithFlushInterval(time.Hour))
	w.Start()

	for range 20 {
		q.Enqueue(newEvent(t))
	}
	q.Close()
	q.Enqueue(newEvent(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.Stop(ctx))

	assert.Equal(t, 20, store.Len())
	stats := q.Stats()
	assert.True(t, stats.Closed)
	assert.Equal(t, int64(1), stats.Rejected)
	assert.Zero(t, stats.Queued)
}

func TestWorker_StartStopIdempotent(t *testing.T) {
	w := New(queue.NewRing(4), memory.NewInMemoryStore(), fastOptions()...)
	w.Start()
	w.Start()
	require.NoError(t, w.Stop(context.Background()))
	require.NoError(t, w.Stop(context.Background()))
	assert.Equal(t, "audit-worker", w.String())
}
