package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "auditpipe/pkg/domain-errors"
)

// TestParseUUID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs"
//
// Justification: This is a pure function enforcing a domain invariant
// at trust boundaries (query parameters, token subjects).
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseUserID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseUserID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseUserID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseUserID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, UserID(validUUID), id)
	})

	t.Run("accepts uppercase UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseEventID(strings.ToUpper(validUUID.String()))
		require.NoError(t, err)
		assert.Equal(t, EventID(validUUID), id)
	})
}

// TestParseErrors_NameTheField verifies error messages identify which
// identifier was rejected, since handlers surface them verbatim.
func TestParseErrors_NameTheField(t *testing.T) {
	_, err := ParseOrganizationID("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "organization ID")

	_, err = ParseEventID("xyz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event ID")
}

func TestNewEventID_IsUniqueAndNonNil(t *testing.T) {
	a := NewEventID()
	b := NewEventID()
	assert.False(t, a.IsNil())
	assert.NotEqual(t, a, b)
}

// TestTypeDistinction verifies the compiler enforces type safety.
// This is a compile-time check - if this compiles, the invariant holds.
func TestTypeDistinction(t *testing.T) {
	userID := UserID(uuid.New())
	orgID := OrganizationID(uuid.New())

	// These would fail to compile if types were interchangeable:
	// var _ UserID = orgID          // compile error
	// var _ OrganizationID = userID // compile error

	assert.NotEqual(t, uuid.UUID(userID), uuid.UUID(orgID))
}

func TestIsNil(t *testing.T) {
	assert.True(t, UserID{}.IsNil())
	assert.True(t, OrganizationID{}.IsNil())
	assert.True(t, EventID{}.IsNil())
	assert.False(t, UserID(uuid.New()).IsNil())
}
