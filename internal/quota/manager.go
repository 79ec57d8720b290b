// Package quota 管理每个用户的请求数与花费配额，窗口在读取时惰性重置。
package quota

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"aiwriter/internal/ai/aierr"
	"aiwriter/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config 配额管理配置
type Config struct {
	DefaultTier string
	Tiers       map[string]Tier
}

// DailyStatus 日请求状态
type DailyStatus struct {
	Used      int64     `json:"used"`
	Limit     int64     `json:"limit"`
	Remaining int64     `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
	Exceeded  bool      `json:"exceeded"`
}

// CounterStatus 月请求状态
type CounterStatus struct {
	Used      int64 `json:"used"`
	Limit     int64 `json:"limit"`
	Remaining int64 `json:"remaining"`
	Exceeded  bool  `json:"exceeded"`
}

// SpendStatus 月花费状态
type SpendStatus struct {
	Used      float64 `json:"used"`
	Limit     float64 `json:"limit"`
	Remaining float64 `json:"remaining"`
	Exceeded  bool    `json:"exceeded"`
}

// MonthlyStatus 月度状态
type MonthlyStatus struct {
	Requests CounterStatus `json:"requests"`
	Spend    SpendStatus   `json:"spend"`
	ResetAt  time.Time     `json:"resetAt"`
}

// Status 配额状态快照
type Status struct {
	Tier    string        `json:"tier"`
	Daily   DailyStatus   `json:"daily"`
	Monthly MonthlyStatus `json:"monthly"`
}

// Manager 配额管理器
// CheckQuota 与 IncrementQuota 是两次独立的存储往返，并发请求可能短暂超出限额
type Manager struct {
	store       Store
	tiers       map[string]Tier
	defaultTier string
	logger      *zap.Logger
	now         func() time.Time
}

// NewManager 创建配额管理器
func NewManager(store Store, cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	tiers := make(map[string]Tier, len(cfg.Tiers))
	for name, t := range cfg.Tiers {
		tiers[name] = t
	}
	if len(tiers) == 0 {
		tiers = DefaultTiers()
	}
	defaultTier := cfg.DefaultTier
	if _, ok := tiers[defaultTier]; !ok {
		defaultTier = TierFree
		if _, ok := tiers[TierFree]; !ok {
			tiers[TierFree] = DefaultTiers()[TierFree]
		}
	}
	return &Manager{
		store:       store,
		tiers:       tiers,
		defaultTier: defaultTier,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Tiers 可用套餐的副本
func (m *Manager) Tiers() map[string]Tier {
	out := make(map[string]Tier, len(m.tiers))
	for name, t := range m.tiers {
		out[name] = t
	}
	return out
}

// CheckQuota 检查配额，超限时返回 *aierr.QuotaExceededError
// 判定顺序：日请求 → 月请求 → 月花费，均在窗口重置之后进行
func (m *Manager) CheckQuota(ctx context.Context, userID string) (*Status, error) {
	status, err := m.GetQuota(ctx, userID)
	if err != nil {
		return nil, err
	}

	var exceeded *aierr.QuotaExceededError
	switch {
	case status.Daily.Exceeded:
		exceeded = aierr.NewQuotaExceeded(aierr.QuotaTypeDaily,
			float64(status.Daily.Limit), float64(status.Daily.Used), status.Daily.ResetAt)
	case status.Monthly.Requests.Exceeded:
		exceeded = aierr.NewQuotaExceeded(aierr.QuotaTypeMonthlyRequests,
			float64(status.Monthly.Requests.Limit), float64(status.Monthly.Requests.Used), status.Monthly.ResetAt)
	case status.Monthly.Spend.Exceeded:
		exceeded = aierr.NewQuotaExceeded(aierr.QuotaTypeMonthlySpend,
			status.Monthly.Spend.Limit, status.Monthly.Spend.Used, status.Monthly.ResetAt)
	}
	if exceeded != nil {
		metrics.QuotaRejectionsTotal.WithLabelValues(exceeded.QuotaType).Inc()
		m.logger.Info("用户配额超限",
			zap.String("user_id", userID),
			zap.String("quota_type", exceeded.QuotaType),
			zap.Float64("limit", exceeded.Limit),
			zap.Float64("used", exceeded.Used),
		)
		return status, exceeded
	}
	return status, nil
}

// GetQuota 返回配额状态，必要时创建默认配额并重置过期窗口
func (m *Manager) GetQuota(ctx context.Context, userID string) (*Status, error) {
	q, err := m.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return buildStatus(q), nil
}

// IncrementQuota 记录一次请求及其花费，失败只记日志
func (m *Manager) IncrementQuota(ctx context.Context, userID string, cost float64) {
	if cost < 0 || math.IsNaN(cost) || math.IsInf(cost, 0) {
		m.logger.Warn("忽略非法花费", zap.String("user_id", userID), zap.Float64("cost", cost))
		cost = 0
	}

	err := m.store.Increment(ctx, userID, cost)
	if errors.Is(err, ErrQuotaNotFound) {
		if _, err = m.ensure(ctx, userID); err == nil {
			err = m.store.Increment(ctx, userID, cost)
		}
	}
	if err != nil {
		metrics.QuotaIncrementFailures.Inc()
		m.logger.Error("更新用户配额失败",
			zap.String("user_id", userID),
			zap.Float64("cost", cost),
			zap.Error(err),
		)
	}
}

// UpdateQuotaLimits 管理员覆盖限额
func (m *Manager) UpdateQuotaLimits(ctx context.Context, userID string, limits Limits) (*Status, error) {
	if _, err := m.ensure(ctx, userID); err != nil {
		return nil, err
	}
	if err := m.store.UpdateLimits(ctx, userID, limits); err != nil {
		return nil, err
	}
	m.logger.Info("更新用户配额限额", zap.String("user_id", userID), zap.Any("limits", limits))
	return m.GetQuota(ctx, userID)
}

// ResetQuota 管理员清零全部计数并重新开始窗口
func (m *Manager) ResetQuota(ctx context.Context, userID string) (*Status, error) {
	if _, err := m.ensure(ctx, userID); err != nil {
		return nil, err
	}
	now := m.now()
	if err := m.store.Reset(ctx, userID, NextDailyReset(now), NextMonthlyReset(now)); err != nil {
		return nil, err
	}
	m.logger.Info("重置用户配额", zap.String("user_id", userID))
	return m.GetQuota(ctx, userID)
}

// ApplyTier 切换套餐并应用其限额，计数保持不变
func (m *Manager) ApplyTier(ctx context.Context, userID, tierName string) (*Status, error) {
	tier, ok := m.tiers[tierName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTier, tierName)
	}
	if tier.Name == "" {
		tier.Name = tierName
	}
	if _, err := m.ensure(ctx, userID); err != nil {
		return nil, err
	}
	if err := m.store.SetTier(ctx, userID, tier); err != nil {
		return nil, err
	}
	m.logger.Info("切换用户套餐", zap.String("user_id", userID), zap.String("tier", tierName))
	return m.GetQuota(ctx, userID)
}

// load 读取配额并惰性重置过期窗口
func (m *Manager) load(ctx context.Context, userID string) (*UserQuota, error) {
	q, err := m.ensure(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := m.now()
	reset := false
	if !now.Before(q.DailyResetAt) {
		ok, err := m.store.ResetDaily(ctx, userID, now, NextDailyReset(now))
		if err != nil {
			return nil, err
		}
		if ok {
			metrics.QuotaResetsTotal.WithLabelValues("daily").Inc()
		}
		reset = true
	}
	if !now.Before(q.MonthlyResetAt) {
		ok, err := m.store.ResetMonthly(ctx, userID, now, NextMonthlyReset(now))
		if err != nil {
			return nil, err
		}
		if ok {
			metrics.QuotaResetsTotal.WithLabelValues("monthly").Inc()
		}
		reset = true
	}
	if !reset {
		return q, nil
	}
	// 可能由并发请求完成了重置，重新读取最新值
	return m.store.Get(ctx, userID)
}

// ensure 读取配额，不存在时按默认套餐创建
func (m *Manager) ensure(ctx context.Context, userID string) (*UserQuota, error) {
	if userID == "" {
		return nil, aierr.NewInvalidRequest("user id is required", nil)
	}
	q, err := m.store.Get(ctx, userID)
	if err == nil {
		return q, nil
	}
	if !errors.Is(err, ErrQuotaNotFound) {
		return nil, err
	}

	tier := m.tiers[m.defaultTier]
	now := m.now()
	q, err = m.store.Create(ctx, &UserQuota{
		ID:                  uuid.New().String(),
		UserID:              userID,
		Tier:                m.defaultTier,
		DailyRequestLimit:   tier.DailyRequests,
		DailyResetAt:        NextDailyReset(now),
		MonthlyRequestLimit: tier.MonthlyRequests,
		MonthlySpendLimit:   tier.MonthlySpend,
		MonthlyResetAt:      NextMonthlyReset(now),
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("创建默认配额", zap.String("user_id", userID), zap.String("tier", q.Tier))
	return q, nil
}

func buildStatus(q *UserQuota) *Status {
	return &Status{
		Tier: q.Tier,
		Daily: DailyStatus{
			Used:      q.DailyRequestCount,
			Limit:     q.DailyRequestLimit,
			Remaining: max(0, q.DailyRequestLimit-q.DailyRequestCount),
			ResetAt:   q.DailyResetAt.UTC(),
			Exceeded:  q.DailyRequestCount >= q.DailyRequestLimit,
		},
		Monthly: MonthlyStatus{
			Requests: CounterStatus{
				Used:      q.MonthlyRequestCount,
				Limit:     q.MonthlyRequestLimit,
				Remaining: max(0, q.MonthlyRequestLimit-q.MonthlyRequestCount),
				Exceeded:  q.MonthlyRequestCount >= q.MonthlyRequestLimit,
			},
			Spend: SpendStatus{
				Used:      q.MonthlySpendAmount,
				Limit:     q.MonthlySpendLimit,
				Remaining: math.Max(0, q.MonthlySpendLimit-q.MonthlySpendAmount),
				Exceeded:  q.MonthlySpendAmount >= q.MonthlySpendLimit,
			},
			ResetAt: q.MonthlyResetAt.UTC(),
		},
	}
}
