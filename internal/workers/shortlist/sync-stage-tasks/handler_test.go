package syncstagetasks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "advising-workers/internal/common/errors"
	"advising-workers/internal/common/logger"
)

type mockSyncer struct{ mock.Mock }

func (m *mockSyncer) SyncStageTasks(ctx context.Context, userID string, stage int) (int, error) {
	args := m.Called(ctx, userID, stage)
	return args.Int(0), args.Error(1)
}

func TestHandler_Execute_Success(t *testing.T) {
	syncer := &mockSyncer{}
	syncer.On("SyncStageTasks", mock.Anything, "user-1", 4).Return(3, nil)
	h := NewHandler(LoadConfig(nil), syncer, logger.NewTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{UserID: " user-1 ", Stage: 4})
	require.NoError(t, err)
	assert.Equal(t, &Output{UserID: "user-1", Stage: 4, TasksCreated: 3}, out)
	syncer.AssertExpectations(t)
}

func TestHandler_Execute_NothingMissing(t *testing.T) {
	syncer := &mockSyncer{}
	syncer.On("SyncStageTasks", mock.Anything, "user-1", 2).Return(0, nil)
	h := NewHandler(LoadConfig(nil), syncer, logger.NewTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{UserID: "user-1", Stage: 2})
	require.NoError(t, err)
	assert.Zero(t, out.TasksCreated)
}

func TestHandler_Execute_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code apperrors.ErrorCode
	}{
		{"validation", apperrors.NewValidationError("userId is required"), apperrors.ErrCodeValidationFailed},
		{"sync failure", apperrors.NewTaskSyncFailedError(3, errors.New("deadlock")), apperrors.ErrCodeTaskSyncFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			syncer := &mockSyncer{}
			syncer.On("SyncStageTasks", mock.Anything, mock.Anything, mock.Anything).Return(0, tt.err)
			h := NewHandler(LoadConfig(nil), syncer, logger.NewTestLogger(t))

			out, err := h.Execute(context.Background(), &Input{Stage: 3})
			assert.Nil(t, out)
			assert.True(t, apperrors.HasCode(err, tt.code))
		})
	}
}
