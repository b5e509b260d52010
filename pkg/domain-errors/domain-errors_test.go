package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap_PreservesExistingCode(t *testing.T) {
	inner := New(CodeValidation, "page must be >= 1")
	wrapped := Wrap(fmt.Errorf("query: %w", inner), CodeInternal, "query failed")

	assert.True(t, HasCode(wrapped, CodeValidation))
	assert.False(t, HasCode(wrapped, CodeInternal))
	assert.Equal(t, "query failed", wrapped.Error())
}

func TestWrap_AssignsCodeToPlainErrors(t *testing.T) {
	cause := errors.New("connection refused")
	wrapped := Wrap(cause, CodeInternal, "audit store unavailable")

	assert.True(t, HasCode(wrapped, CodeInternal))
	assert.ErrorIs(t, wrapped, cause)
}

func TestIs_MatchesByCode(t *testing.T) {
	err := New(CodeNotFound, "event not found")
	assert.True(t, errors.Is(err, &Error{Code: CodeNotFound}))
	assert.False(t, errors.Is(err, &Error{Code: CodeInternal}))
}

func TestError_FallsBackToCode(t *testing.T) {
	assert.Equal(t, "timeout", (&Error{Code: CodeTimeout}).Error())
}
