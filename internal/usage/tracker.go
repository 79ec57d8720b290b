// Package usage 记录每次生成尝试的用量与成本，并提供按时间窗口的汇总查询。
package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aiwriter/internal/metrics"
	"aiwriter/pkg/aiinterface"

	"go.uber.org/zap"
)

// ErrInvalidPeriod 不支持的统计周期
var ErrInvalidPeriod = errors.New("invalid usage period")

// Period 统计周期
type Period string

const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
	PeriodAll   Period = "all"
)

// ParsePeriod 解析统计周期，空字符串视为 month
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case "":
		return PeriodMonth, nil
	case PeriodDay, PeriodMonth, PeriodAll:
		return Period(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
}

// Stats 用户用量统计
type Stats struct {
	Period Period     `json:"period"`
	Since  *time.Time `json:"since,omitempty"`
	Aggregate
}

// Tracker 用量追踪器
type Tracker struct {
	store        Store
	logger       *zap.Logger
	excerptRunes int
	now          func() time.Time
}

// NewTracker 创建用量追踪器
func NewTracker(store Store, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		store:        store,
		logger:       logger,
		excerptRunes: DefaultPromptExcerptRunes,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SetPromptExcerptLimit 设置提示词摘录长度，非正数忽略
func (t *Tracker) SetPromptExcerptLimit(runes int) {
	if runes > 0 {
		t.excerptRunes = runes
	}
}

// Persist 写入一条用量记录，失败时返回错误（供任务队列重试）
func (t *Tracker) Persist(ctx context.Context, rec *Record) error {
	if rec == nil {
		return errors.New("usage record is nil")
	}

	provider, err := t.store.FindOrCreateProvider(ctx, rec.Provider)
	if err != nil {
		metrics.UsageRecordsTotal.WithLabelValues("failed").Inc()
		return err
	}

	log := &UsageLog{
		RequestID:     rec.RequestID,
		UserID:        rec.UserID,
		ProviderID:    provider.ID,
		ProviderName:  provider.Name,
		Model:         rec.Model,
		Operation:     rec.Operation,
		PromptExcerpt: excerpt(rec.Prompt, t.excerptRunes),
		LatencyMs:     latencyMillis(rec.Latency),
		Success:       rec.Success,
		Metadata:      rec.Metadata,
		CreatedAt:     rec.CreatedAt,
	}
	if log.Operation == "" {
		log.Operation = OperationGenerate
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = t.now()
	}
	if rec.Success {
		log.PromptTokens = rec.PromptTokens
		log.CompletionTokens = rec.CompletionTokens
		log.TotalTokens = rec.TotalTokens
		log.Cost = rec.Cost
	} else {
		log.ErrorCode = rec.ErrorCode
		log.ErrorMessage = rec.ErrorMessage
	}

	if err := t.store.InsertUsage(ctx, log); err != nil {
		metrics.UsageRecordsTotal.WithLabelValues("failed").Inc()
		return err
	}
	metrics.UsageRecordsTotal.WithLabelValues("persisted").Inc()
	return nil
}

// RecordUsage 写入用量记录，错误只记录日志，不向调用方返回
func (t *Tracker) RecordUsage(ctx context.Context, rec *Record) {
	if err := t.Persist(ctx, rec); err != nil {
		fields := []zap.Field{zap.Error(err)}
		if rec != nil {
			fields = append(fields,
				zap.String("request_id", rec.RequestID),
				zap.String("user_id", rec.UserID),
				zap.String("provider", rec.Provider),
				zap.String("model", rec.Model),
			)
		}
		t.logger.Error("记录 AI 用量失败", fields...)
	}
}

// RecordSuccess 记录一次成功调用
func (t *Tracker) RecordSuccess(ctx context.Context, userID string, req *aiinterface.GenerateRequest, res *aiinterface.GenerateResult, latency time.Duration) {
	if res == nil {
		t.logger.Warn("忽略空的生成结果", zap.String("user_id", userID))
		return
	}
	t.RecordUsage(ctx, NewSuccessRecord(userID, req, res, latency))
}

// RecordFailure 记录一次失败调用
func (t *Tracker) RecordFailure(ctx context.Context, userID string, req *aiinterface.GenerateRequest, provider, model string, err error, latency time.Duration) {
	t.RecordUsage(ctx, NewFailureRecord(userID, req, provider, model, err, latency))
}

// GetUserStats 汇总用户在指定周期内的用量
// day 从当日 UTC 零点起算，month 从当月 1 日 UTC 零点起算
func (t *Tracker) GetUserStats(ctx context.Context, userID string, period Period) (*Stats, error) {
	since, err := t.periodStart(period)
	if err != nil {
		return nil, err
	}

	agg, err := t.store.Aggregate(ctx, userID, since)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Period: period, Aggregate: *agg}
	if !since.IsZero() {
		stats.Since = &since
	}
	return stats, nil
}

func (t *Tracker) periodStart(period Period) (time.Time, error) {
	now := t.now().UTC()
	switch period {
	case PeriodDay:
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	case PeriodMonth:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), nil
	case PeriodAll:
		return time.Time{}, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
}
