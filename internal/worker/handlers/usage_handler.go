package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"aiwriter/internal/usage"
	"aiwriter/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// UsagePersister 用量记录写入
type UsagePersister interface {
	Persist(ctx context.Context, rec *usage.Record) error
}

// UsageHandler 用量记录任务处理器
type UsageHandler struct {
	tracker UsagePersister
	logger  *zap.Logger
}

// NewUsageHandler 创建处理器
func NewUsageHandler(tracker UsagePersister, logger *zap.Logger) *UsageHandler {
	return &UsageHandler{
		tracker: tracker,
		logger:  logger,
	}
}

// HandleRecordUsage 写入用量记录，失败返回错误由 asynq 重试
func (h *UsageHandler) HandleRecordUsage(ctx context.Context, t *asynq.Task) error {
	var p tasks.RecordUsagePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	if p.Record == nil {
		return fmt.Errorf("payload has no record: %w", asynq.SkipRetry)
	}

	if err := h.tracker.Persist(ctx, p.Record); err != nil {
		h.logger.Warn("用量记录写入失败，等待重试",
			zap.String("request_id", p.Record.RequestID),
			zap.String("user_id", p.Record.UserID),
			zap.Error(err),
		)
		return err
	}

	h.logger.Debug("用量记录已写入", zap.String("request_id", p.Record.RequestID))
	return nil
}
