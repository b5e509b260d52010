package compliance

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	dErrors "auditpipe/pkg/domain-errors"
	audit "auditpipe/pkg/platform/audit"
	"auditpipe/pkg/platform/audit/mocks"
)

func validEvent(t *testing.T) audit.Event {
	t.Helper()
	e, err := audit.NewEvent().
		Action(audit.ActionRoleChanged).
		Resource(audit.ResourceMembership, "m-1", "Ops team").
		Build()
	require.NoError(t, err)
	return e
}

func TestPublisher_Emit(t *testing.T) {
	ctx := context.Background()

	t.Run("writes event through the store", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockWriter(ctrl)
		event := validEvent(t)
		store.EXPECT().Insert(gomock.Any(), event).Return(nil)

		require.NoError(t, New(store, WithMetrics(NewMetrics())).Emit(ctx, event))
	})

	t.Run("store failure is surfaced as internal error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockWriter(ctrl)
		cause := errors.New("connection reset")
		store.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(cause)

		err := New(store).Emit(ctx, validEvent(t))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
		assert.ErrorIs(t, err, cause)
	})

	t.Run("invalid event never reaches the store", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockWriter(ctrl)

		event := validEvent(t)
		event.Resource.ID = ""
		err := New(store).Emit(ctx, event)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}
