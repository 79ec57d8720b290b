package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"aiwriter/internal/usage"
	"aiwriter/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mockPersister struct {
	mock.Mock
}

func (m *mockPersister) Persist(ctx context.Context, rec *usage.Record) error {
	return m.Called(ctx, rec).Error(0)
}

func newTask(t *testing.T, rec *usage.Record) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(tasks.RecordUsagePayload{Record: rec})
	require.NoError(t, err)
	return asynq.NewTask(tasks.TypeRecordUsage, payload)
}

func TestUsageHandler_HandleRecordUsage(t *testing.T) {
	rec := &usage.Record{
		RequestID:    "req-1",
		UserID:       "user-1",
		Provider:     "openai",
		Model:        "gpt-4o-mini",
		Prompt:       "写一首诗",
		PromptTokens: 5,
		TotalTokens:  12,
		Latency:      1500 * time.Millisecond,
		Success:      true,
		Cost:         0.0012,
		Metadata:     map[string]any{"maxTokens": 100},
		CreatedAt:    time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC),
	}

	t.Run("写入成功", func(t *testing.T) {
		persister := &mockPersister{}
		persister.On("Persist", mock.Anything, mock.MatchedBy(func(got *usage.Record) bool {
			return got.RequestID == "req-1" &&
				got.Latency == 1500*time.Millisecond &&
				got.CreatedAt.Equal(rec.CreatedAt) &&
				got.Cost == 0.0012
		})).Return(nil)

		h := NewUsageHandler(persister, zaptest.NewLogger(t))
		require.NoError(t, h.HandleRecordUsage(context.Background(), newTask(t, rec)))
		persister.AssertExpectations(t)
	})

	t.Run("写入失败返回错误以便重试", func(t *testing.T) {
		persister := &mockPersister{}
		persister.On("Persist", mock.Anything, mock.Anything).Return(errors.New("db down"))

		h := NewUsageHandler(persister, zaptest.NewLogger(t))
		err := h.HandleRecordUsage(context.Background(), newTask(t, rec))
		require.Error(t, err)
		assert.False(t, errors.Is(err, asynq.SkipRetry))
	})

	t.Run("载荷损坏不重试", func(t *testing.T) {
		persister := &mockPersister{}
		h := NewUsageHandler(persister, zaptest.NewLogger(t))

		err := h.HandleRecordUsage(context.Background(), asynq.NewTask(tasks.TypeRecordUsage, []byte("{")))
		assert.ErrorIs(t, err, asynq.SkipRetry)

		err = h.HandleRecordUsage(context.Background(), asynq.NewTask(tasks.TypeRecordUsage, []byte(`{}`)))
		assert.ErrorIs(t, err, asynq.SkipRetry)
		persister.AssertNotCalled(t, "Persist", mock.Anything, mock.Anything)
	})
}
