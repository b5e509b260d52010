package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "auditpipe/pkg/domain"
)

// TestActionType_WireNamesRoundTrip guards the stable wire names used in
// storage and exports.
//
// Justification: Renaming an action silently orphans persisted rows.
func TestActionType_WireNamesRoundTrip(t *testing.T) {
	for action, meta := range actions {
		parsed, err := ParseActionType(meta.name)
		require.NoError(t, err)
		assert.Equal(t, action, parsed)
		assert.Equal(t, meta.name, action.String())
	}
}

func TestActionType_AdministrativeBand(t *testing.T) {
	assert.True(t, ActionAdminSettingsChanged.IsAdministrative())
	assert.True(t, ActionAdminRetentionPurge.IsAdministrative())
	assert.False(t, ActionDeleted.IsAdministrative())
	assert.False(t, ActionType(150).Valid(), "reserved but undefined values are not valid")
}

func TestActionType_Category(t *testing.T) {
	assert.Equal(t, CategoryCompliance, ActionDeleted.Category())
	assert.Equal(t, CategoryCompliance, ActionAdminUserImpersonated.Category())
	assert.Equal(t, CategorySecurity, ActionAuthorizationDenied.Category())
	assert.Equal(t, CategoryOperations, ActionAccessed.Category())
	assert.Equal(t, CategoryOperations, ActionType(999).Category())
}

func TestParseEnums_RejectUnknown(t *testing.T) {
	_, err := ParseActionType("launched")
	assert.Error(t, err)
	_, err = ParseResourceType("spaceship")
	assert.Error(t, err)
	_, err = ParseOutcome("maybe")
	assert.Error(t, err)

	r, err := ParseResourceType("api_key")
	require.NoError(t, err)
	assert.Equal(t, ResourceAPIKey, r)
}

func TestEvent_Validate(t *testing.T) {
	valid, err := NewEvent().Action(ActionCreated).Resource(ResourceProject, "p-1", "").Build()
	require.NoError(t, err)
	require.NoError(t, valid.Validate())

	t.Run("failure reason on success", func(t *testing.T) {
		e := valid
		e.FailureReason = "oops"
		assert.Error(t, e.Validate())
	})

	t.Run("missing resource id", func(t *testing.T) {
		e := valid
		e.Resource.ID = ""
		assert.Error(t, e.Validate())
	})

	t.Run("zero timestamp", func(t *testing.T) {
		e := valid
		e.Timestamp = time.Time{}
		assert.Error(t, e.Validate())
	})

	t.Run("nil id", func(t *testing.T) {
		e := valid
		e.ID = id.EventID{}
		assert.Error(t, e.Validate())
	})
}
