package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrQuotaNotFound 用户配额不存在
var ErrQuotaNotFound = errors.New("quota not found")

// Store 配额存储
// ResetDaily/ResetMonthly 为条件更新：仅当存储中的重置时间 <= now 时生效，返回是否实际重置
type Store interface {
	Get(ctx context.Context, userID string) (*UserQuota, error)
	// Create 创建配额，已存在时返回现有记录
	Create(ctx context.Context, q *UserQuota) (*UserQuota, error)
	ResetDaily(ctx context.Context, userID string, now, next time.Time) (bool, error)
	ResetMonthly(ctx context.Context, userID string, now, next time.Time) (bool, error)
	// Increment 原子递增日/月请求数与月花费，记录不存在时返回 ErrQuotaNotFound
	Increment(ctx context.Context, userID string, cost float64) error
	UpdateLimits(ctx context.Context, userID string, limits Limits) error
	Reset(ctx context.Context, userID string, dailyNext, monthlyNext time.Time) error
	SetTier(ctx context.Context, userID string, tier Tier) error
}

// GormStore 基于 GORM 的配额存储
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 创建配额存储
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Get(ctx context.Context, userID string) (*UserQuota, error) {
	var q UserQuota
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&q).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrQuotaNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询配额失败: %w", err)
	}
	return &q, nil
}

func (s *GormStore) Create(ctx context.Context, q *UserQuota) (*UserQuota, error) {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(q).Error
	if err != nil {
		return nil, fmt.Errorf("创建配额失败: %w", err)
	}
	return s.Get(ctx, q.UserID)
}

func (s *GormStore) ResetDaily(ctx context.Context, userID string, now, next time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&UserQuota{}).
		Where("user_id = ? AND daily_reset_at <= ?", userID, now).
		Updates(map[string]any{
			"daily_request_count": 0,
			"daily_reset_at":      next,
		})
	if res.Error != nil {
		return false, fmt.Errorf("重置日配额失败: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) ResetMonthly(ctx context.Context, userID string, now, next time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&UserQuota{}).
		Where("user_id = ? AND monthly_reset_at <= ?", userID, now).
		Updates(map[string]any{
			"monthly_request_count": 0,
			"monthly_spend_amount":  0,
			"monthly_reset_at":      next,
		})
	if res.Error != nil {
		return false, fmt.Errorf("重置月配额失败: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) Increment(ctx context.Context, userID string, cost float64) error {
	res := s.db.WithContext(ctx).Model(&UserQuota{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"daily_request_count":   gorm.Expr("daily_request_count + ?", 1),
			"monthly_request_count": gorm.Expr("monthly_request_count + ?", 1),
			"monthly_spend_amount":  gorm.Expr("monthly_spend_amount + ?", cost),
		})
	if res.Error != nil {
		return fmt.Errorf("更新配额计数失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrQuotaNotFound
	}
	return nil
}

func (s *GormStore) UpdateLimits(ctx context.Context, userID string, limits Limits) error {
	updates := map[string]any{}
	if limits.DailyRequests != nil {
		updates["daily_request_limit"] = *limits.DailyRequests
	}
	if limits.MonthlyRequests != nil {
		updates["monthly_request_limit"] = *limits.MonthlyRequests
	}
	if limits.MonthlySpend != nil {
		updates["monthly_spend_limit"] = *limits.MonthlySpend
	}
	if len(updates) == 0 {
		return nil
	}
	return s.update(ctx, userID, updates)
}

func (s *GormStore) Reset(ctx context.Context, userID string, dailyNext, monthlyNext time.Time) error {
	return s.update(ctx, userID, map[string]any{
		"daily_request_count":   0,
		"daily_reset_at":        dailyNext,
		"monthly_request_count": 0,
		"monthly_spend_amount":  0,
		"monthly_reset_at":      monthlyNext,
	})
}

func (s *GormStore) SetTier(ctx context.Context, userID string, tier Tier) error {
	return s.update(ctx, userID, map[string]any{
		"tier":                  tier.Name,
		"daily_request_limit":   tier.DailyRequests,
		"monthly_request_limit": tier.MonthlyRequests,
		"monthly_spend_limit":   tier.MonthlySpend,
	})
}

func (s *GormStore) update(ctx context.Context, userID string, updates map[string]any) error {
	res := s.db.WithContext(ctx).Model(&UserQuota{}).Where("user_id = ?", userID).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("更新配额失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrQuotaNotFound
	}
	return nil
}
