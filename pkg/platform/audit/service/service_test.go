package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	id "auditpipe/pkg/domain"
	dErrors "auditpipe/pkg/domain-errors"
	audit "auditpipe/pkg/platform/audit"
	"auditpipe/pkg/platform/audit/mocks"
	"auditpipe/pkg/platform/audit/publishers/compliance"
	"auditpipe/pkg/platform/audit/queue"
	"auditpipe/pkg/platform/audit/store/memory"
	"auditpipe/pkg/platform/audit/worker"
)

type fixture struct {
	queue   *queue.Ring
	store   *memory.InMemoryStore
	worker  *worker.Worker
	service *Service
}

func newFixture(t *testing.T, capacity int) *fixture {
	t.Helper()
	q := queue.NewRing(capacity)
	store := memory.NewInMemoryStore()
	w := worker.New(q, store, worker.WithFlushInterval(5*time.Millisecond))
	return &fixture{
		queue:   q,
		store:   store,
		worker:  w,
		service: New(q, compliance.New(store), store, WithMetrics(NewMetrics())),
	}
}

func buildEvent(t *testing.T, actor id.UserID, action audit.ActionType, name string) audit.Event {
	t.Helper()
	e, err := audit.NewEvent().
		Actor(actor, "Riley", "198.51.100.23").
		Action(action).
		Resource(audit.ResourceProject, "p-"+name, name).
		Build()
	require.NoError(t, err)
	return e
}

// TestLogAsync_RoundTrip verifies an event logged asynchronously becomes
// queryable once the worker drains the queue.
func TestLogAsync_RoundTrip(t *testing.T) {
	f := newFixture(t, 64)
	f.worker.Start()
	t.Cleanup(func() { _ = f.worker.Stop(context.Background()) })

	actor := id.UserID(uuid.New())
	e := buildEvent(t, actor, audit.ActionUpdated, "Apollo")
	f.service.LogAsync(e)

	require.Eventually(t, func() bool {
		page, err := f.service.Query(context.Background(), audit.Query{})
		return err == nil && page.TotalCount == 1
	}, time.Second, 5*time.Millisecond)

	detail, found, err := f.service.GetByID(context.Background(), e.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Apollo", detail.ResourceName)
}

// TestLogAsync_OverflowKeepsNewest verifies that five events into a queue of
// three leave the last three.
func TestLogAsync_OverflowKeepsNewest(t *testing.T) {
	f := newFixture(t, 3)
	before := testutil.ToFloat64(NewMetrics().OverflowDropped)

	actor := id.UserID(uuid.New())
	names := []string{"1", "2", "3", "4", "5"}
	for _, n := range names {
		f.service.LogAsync(buildEvent(t, actor, audit.ActionUpdated, n))
	}

	batch := f.queue.DequeueBatch(10)
	require.Len(t, batch, 3)
	assert.Equal(t, "3", batch[0].Resource.Name)
	assert.Equal(t, "4", batch[1].Resource.Name)
	assert.Equal(t, "5", batch[2].Resource.Name)
	assert.Equal(t, float64(2), testutil.ToFloat64(NewMetrics().OverflowDropped)-before)
}

func TestLogAsync_DiscardsInvalid(t *testing.T) {
	f := newFixture(t, 8)
	e := buildEvent(t, id.UserID(uuid.New()), audit.ActionUpdated, "x")
	e.Outcome = "exploded"

	f.service.LogAsync(e)
	assert.Zero(t, f.queue.Len())

	noAction, err := audit.NewEvent().Resource(audit.ResourceProject, "p1", "").Build()
	require.NoError(t, err)
	f.service.LogAsync(noAction)
	assert.Zero(t, f.queue.Len())
	assert.True(t, dErrors.HasCode(f.service.LogSync(context.Background(), noAction), dErrors.CodeValidation))
}

// TestLogAsync_ComplianceIsAcceptedAndCounted verifies compliance actions on
// the async path are still recorded.
func TestLogAsync_ComplianceIsAcceptedAndCounted(t *testing.T) {
	f := newFixture(t, 8)
	before := testutil.ToFloat64(NewMetrics().ComplianceAsync)

	f.service.LogAsync(buildEvent(t, id.UserID(uuid.New()), audit.ActionRoleChanged, "team"))

	assert.Equal(t, 1, f.queue.Len())
	assert.Equal(t, float64(1), testutil.ToFloat64(NewMetrics().ComplianceAsync)-before)
}

// TestFailurePropagation verifies the async path absorbs
// persistence errors while the sync path surfaces them.
func TestFailurePropagation(t *testing.T) {
	ctrl := gomock.NewController(t)
	writer := mocks.NewMockWriter(ctrl)
	boom := errors.New("disk full")
	writer.EXPECT().InsertBatch(gomock.Any(), gomock.Any()).Return(boom).AnyTimes()
	writer.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(boom).AnyTimes()

	q := queue.NewRing(8)
	w := worker.New(q, writer,
		worker.WithFlushInterval(5*time.Millisecond),
		worker.WithMaxRetries(0),
		worker.WithBreaker(100, time.Minute),
	)
	w.Start()
	t.Cleanup(func() { _ = w.Stop(context.Background()) })

	svc := New(q, compliance.New(writer), memory.NewInMemoryStore())
	e := buildEvent(t, id.UserID(uuid.New()), audit.ActionDeleted, "gone")

	assert.NotPanics(t, func() { svc.LogAsync(e) })
	require.Eventually(t, func() bool { return w.Stats().Abandoned == 1 }, time.Second, 5*time.Millisecond)

	err := svc.LogSync(context.Background(), e)
	require.ErrorIs(t, err, boom)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
}

func TestLogSync_Persists(t *testing.T) {
	f := newFixture(t, 8)
	e := buildEvent(t, id.UserID(uuid.New()), audit.ActionRoleChanged, "team")

	require.NoError(t, f.service.LogSync(context.Background(), e))
	_, err := f.store.Get(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Zero(t, f.queue.Len())
}

// TestQueryUserEvents_NeverCarriesIP verifies the self-service projection
// serializes without the actor's address.
func TestQueryUserEvents_NeverCarriesIP(t *testing.T) {
	f := newFixture(t, 8)
	actor := id.UserID(uuid.New())
	require.NoError(t, f.service.LogSync(context.Background(), buildEvent(t, actor, audit.ActionUpdated, "doc")))

	page, err := f.service.QueryUserEvents(context.Background(), actor, audit.Query{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)

	raw, err := json.Marshal(page)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "198.51.100.23")
	assert.NotContains(t, string(raw), "ip_address")
}

func TestStreamExport_DefaultBatchSize(t *testing.T) {
	q := queue.NewRing(1)
	store := memory.NewInMemoryStore()
	svc := New(q, compliance.New(store), store, WithExportBatchSize(250))

	assert.Equal(t, 250, svc.StreamExport(audit.Query{}, 0).BatchSize())
	assert.Equal(t, 20, svc.StreamExport(audit.Query{}, 20).BatchSize())
}
