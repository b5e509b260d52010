package audit

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "auditpipe/pkg/domain"
	dErrors "auditpipe/pkg/domain-errors"
	"auditpipe/pkg/requestcontext"
)

func TestBuild_RequiresResource(t *testing.T) {
	t.Run("resource never set", func(t *testing.T) {
		_, err := NewEvent().Action(ActionCreated).Build()
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("resource with empty id", func(t *testing.T) {
		_, err := NewEvent().Action(ActionCreated).Resource(ResourceProject, "", "Apollo").Build()
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("resource with id succeeds", func(t *testing.T) {
		event, err := NewEvent().Action(ActionCreated).Resource(ResourceProject, "p-1", "Apollo").Build()
		require.NoError(t, err)
		assert.Equal(t, "p-1", event.Resource.ID)
		assert.NoError(t, event.Validate())
	})
}

func TestBuild_Defaults(t *testing.T) {
	before := time.Now().UTC()
	event, err := NewEvent().Action(ActionAccessed).Resource(ResourceUser, "u-1", "").Build()
	require.NoError(t, err)

	assert.False(t, event.ID.IsNil())
	assert.Equal(t, OutcomeSuccess, event.Outcome)
	assert.Empty(t, event.FailureReason)
	assert.False(t, event.Timestamp.Before(before))
	assert.Equal(t, time.UTC, event.Timestamp.Location())
}

// TestBuild_IdentityAssignedOnce verifies repeated builds from the same
// builder yield the same id and timestamp.
func TestBuild_IdentityAssignedOnce(t *testing.T) {
	b := NewEvent().Action(ActionUpdated).Resource(ResourceSettings, "s-1", "")
	first, err := b.Build()
	require.NoError(t, err)

	second, err := b.Failure("retry").Build()
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Timestamp, second.Timestamp)
}

func TestBuild_FailureReasonTruncation(t *testing.T) {
	t.Run("short reason kept verbatim", func(t *testing.T) {
		event, err := NewEvent().Action(ActionDeleted).Resource(ResourceWebhook, "w-1", "").
			Failure("timeout").Build()
		require.NoError(t, err)
		assert.Equal(t, OutcomeFailure, event.Outcome)
		assert.Equal(t, "timeout", event.FailureReason)
	})

	t.Run("reason at cap kept verbatim", func(t *testing.T) {
		reason := strings.Repeat("a", MaxFailureReasonLength)
		event, err := NewEvent().Action(ActionDeleted).Resource(ResourceWebhook, "w-1", "").
			Denied(reason).Build()
		require.NoError(t, err)
		assert.Equal(t, reason, event.FailureReason)
	})

	t.Run("long reason truncated with marker", func(t *testing.T) {
		reason := strings.Repeat("x", 5000)
		event, err := NewEvent().Action(ActionDeleted).Resource(ResourceWebhook, "w-1", "").
			Partial(reason).Build()
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(event.FailureReason, TruncationMarker))
		assert.Equal(t, MaxFailureReasonLength+utf8.RuneCountInString(TruncationMarker),
			utf8.RuneCountInString(event.FailureReason))
	})

	t.Run("multibyte reason cut on rune boundary", func(t *testing.T) {
		reason := strings.Repeat("é", MaxFailureReasonLength+1)
		got := TruncateReason(reason)
		assert.True(t, utf8.ValidString(got))
		assert.Equal(t, strings.Repeat("é", MaxFailureReasonLength)+TruncationMarker, got)
	})
}

func TestBuild_SuccessClearsReason(t *testing.T) {
	event, err := NewEvent().Action(ActionUpdated).Resource(ResourceRole, "r-1", "").
		Failure("nope").Success().Build()
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, event.Outcome)
	assert.Empty(t, event.FailureReason)
}

func TestBuild_DetailsAreCopied(t *testing.T) {
	details := map[string]any{"field": "name"}
	b := NewEvent().Action(ActionUpdated).Resource(ResourceProject, "p-1", "").Details(details)
	details["field"] = "mutated"

	event, err := b.Detail("old", "a").Build()
	require.NoError(t, err)
	assert.Equal(t, "name", event.Details["field"])
	assert.Equal(t, "a", event.Details["old"])

	event.Details["field"] = "changed-after-build"
	again, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, "name", again.Details["field"])
}

func TestBuild_FromContext(t *testing.T) {
	userID := id.UserID(uuid.New())
	ctx := requestcontext.WithRequestID(context.Background(), "req-123")
	ctx = requestcontext.WithClientMetadata(ctx, "203.0.113.9", "curl")
	ctx = requestcontext.WithUserID(ctx, userID)

	event, err := NewEvent().FromContext(ctx).Action(ActionAccessed).
		Resource(ResourceAuditLog, "export", "").Build()
	require.NoError(t, err)

	assert.Equal(t, "req-123", event.CorrelationID)
	assert.Equal(t, "203.0.113.9", event.Actor.IPAddress)
	assert.Equal(t, userID, event.Actor.UserID)
}

func TestBuild_ResourceIsTheOnlyRequirement(t *testing.T) {
	t.Run("no action", func(t *testing.T) {
		event, err := NewEvent().Resource(ResourceProject, "p1", "").Build()
		require.NoError(t, err)
		assert.Equal(t, "p1", event.Resource.ID)
	})

	t.Run("unknown enums build but fail validation", func(t *testing.T) {
		event, err := NewEvent().Action(ActionType(42)).Resource(ResourceProject, "p", "").Build()
		require.NoError(t, err)
		assert.True(t, dErrors.HasCode(event.Validate(), dErrors.CodeValidation))

		event, err = NewEvent().Action(ActionCreated).Resource(ResourceType(42), "p", "").Build()
		require.NoError(t, err)
		assert.True(t, dErrors.HasCode(event.Validate(), dErrors.CodeValidation))
	})
}
