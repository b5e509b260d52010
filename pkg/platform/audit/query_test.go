package audit

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "auditpipe/pkg/domain"
	dErrors "auditpipe/pkg/domain-errors"
)

func TestQuery_Validate(t *testing.T) {
	tests := []struct {
		name    string
		query   Query
		wantErr bool
	}{
		{name: "defaults are valid", query: Query{}},
		{name: "max page size", query: Query{PageSize: MaxPageSize}},
		{name: "negative page", query: Query{Page: -1}, wantErr: true},
		{name: "page size above max", query: Query{PageSize: MaxPageSize + 1}, wantErr: true},
		{name: "negative page size", query: Query{PageSize: -5}, wantErr: true},
		{name: "last addressable page", query: Query{Page: MaxPage, PageSize: MaxPageSize}},
		{name: "page beyond offset range", query: Query{Page: 1<<57 + 1, PageSize: MaxPageSize}, wantErr: true},
		{name: "inverted range", query: Query{
			From: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
			To:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		}, wantErr: true},
		{name: "unknown action", query: Query{ActionTypes: []ActionType{77}}, wantErr: true},
		{name: "bad sort", query: Query{Sort: "sideways"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.WithDefaults().Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestQuery_WithDefaults(t *testing.T) {
	q := Query{}.WithDefaults()
	assert.Equal(t, 1, q.Page)
	assert.Equal(t, DefaultPageSize, q.PageSize)
	assert.Equal(t, SortDesc, q.Sort)
	assert.Equal(t, 0, q.Offset())

	q = Query{Page: 3, PageSize: 20}.WithDefaults()
	assert.Equal(t, 40, q.Offset())
}

// TestQuery_MultiValueFilterWins verifies that when both the single-value and
// multi-value selectors are supplied, only the multi-value one applies.
func TestQuery_MultiValueFilterWins(t *testing.T) {
	f := Query{
		ActionType:    ActionCreated,
		ActionTypes:   []ActionType{ActionUpdated, ActionDeleted},
		ResourceType:  ResourceVote,
		ResourceTypes: []ResourceType{ResourceProposal},
	}.Filter()

	assert.Equal(t, []ActionType{ActionUpdated, ActionDeleted}, f.Actions)
	assert.Equal(t, []ResourceType{ResourceProposal}, f.ResourceTypes)

	created := event(t, ActionCreated, ResourceProposal, "Budget", time.Now())
	updated := event(t, ActionUpdated, ResourceProposal, "Budget", time.Now())
	assert.False(t, f.Matches(created))
	assert.True(t, f.Matches(updated))
}

func TestQuery_SingleValueFilterUsedAlone(t *testing.T) {
	f := Query{ActionType: ActionCreated}.Filter()
	assert.Equal(t, []ActionType{ActionCreated}, f.Actions)
	assert.Nil(t, f.ResourceTypes)
}

func TestFilter_Matches(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e := event(t, ActionUpdated, ResourceProject, "Apollo Launch", base)
	e.Actor.DisplayName = "Grace Hopper"
	e.Organization.ID = id.OrganizationID(uuid.New())

	t.Run("inclusive range bounds", func(t *testing.T) {
		assert.True(t, Filter{From: base, To: base}.Matches(e))
		assert.False(t, Filter{From: base.Add(time.Nanosecond)}.Matches(e))
		assert.False(t, Filter{To: base.Add(-time.Nanosecond)}.Matches(e))
	})

	t.Run("case-insensitive search on resource name", func(t *testing.T) {
		assert.True(t, Filter{Search: "apollo"}.Matches(e))
		assert.True(t, Filter{Search: "LAUNCH"}.Matches(e))
	})

	t.Run("case-insensitive search on actor name", func(t *testing.T) {
		assert.True(t, Filter{Search: "hopper"}.Matches(e))
		assert.False(t, Filter{Search: "lovelace"}.Matches(e))
	})

	t.Run("organization scope", func(t *testing.T) {
		assert.True(t, Filter{OrganizationID: e.Organization.ID}.Matches(e))
		assert.False(t, Filter{OrganizationID: id.OrganizationID(uuid.New())}.Matches(e))
	})

	t.Run("outcome and resource id", func(t *testing.T) {
		assert.True(t, Filter{Outcome: OutcomeSuccess, ResourceID: e.Resource.ID}.Matches(e))
		assert.False(t, Filter{Outcome: OutcomeDenied}.Matches(e))
		assert.False(t, Filter{ResourceID: "other"}.Matches(e))
	})
}

func TestNewPage_TotalPages(t *testing.T) {
	p := NewPage([]int{1, 2}, 101, 1, 50)
	assert.Equal(t, 3, p.TotalPages)

	empty := NewPage[int](nil, 0, 1, 50)
	assert.NotNil(t, empty.Items)
	assert.Equal(t, 0, empty.TotalPages)
}

func TestProjectRedacted_DropsIPAddress(t *testing.T) {
	e := event(t, ActionAccessed, ResourceUser, "me", time.Now())
	e.Actor.IPAddress = "198.51.100.4"

	full := Project(e)
	assert.Equal(t, "198.51.100.4", full.ActorIPAddress)

	redacted := ProjectRedacted(e)
	assert.Equal(t, full.ID, redacted.ID)
	assert.Equal(t, full.ResourceName, redacted.ResourceName)
}

func event(t *testing.T, action ActionType, resourceType ResourceType, name string, ts time.Time) Event {
	t.Helper()
	e, err := NewEvent().Action(action).Resource(resourceType, uuid.NewString(), name).Build()
	require.NoError(t, err)
	e.Timestamp = ts
	return e
}
