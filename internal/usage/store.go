package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store 用量存储接口
type Store interface {
	// FindOrCreateProvider 按名称查找提供方，不存在时创建
	FindOrCreateProvider(ctx context.Context, name string) (*Provider, error)
	// InsertUsage 追加用量记录，相同 RequestID 重复写入时忽略
	InsertUsage(ctx context.Context, log *UsageLog) error
	// Aggregate 汇总用户自 since 起的用量，since 为零值时汇总全部
	Aggregate(ctx context.Context, userID string, since time.Time) (*Aggregate, error)
}

// Aggregate 聚合结果
type Aggregate struct {
	TotalRequests int64   `json:"totalRequests"`
	SuccessCount  int64   `json:"successCount"`
	FailureCount  int64   `json:"failureCount"`
	TotalTokens   int64   `json:"totalTokens"`
	TotalCost     float64 `json:"totalCost"`
	AvgLatencyMs  float64 `json:"avgLatencyMs"`
}

// GormStore 基于 GORM 的用量存储
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 创建用量存储
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// FindOrCreateProvider 查找或创建提供方，并发创建时依赖唯一索引去重
func (s *GormStore) FindOrCreateProvider(ctx context.Context, name string) (*Provider, error) {
	var provider Provider
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&provider).Error
	if err == nil {
		return &provider, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("查询提供方失败: %w", err)
	}

	provider = Provider{
		ID:          uuid.New().String(),
		Name:        name,
		DisplayName: displayName(name),
		IsActive:    true,
	}
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(&provider).Error; err != nil {
		return nil, fmt.Errorf("创建提供方失败: %w", err)
	}

	// 另一请求可能抢先创建，重新读取以拿到最终 ID
	var stored Provider
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("读取提供方失败: %w", err)
	}
	return &stored, nil
}

// InsertUsage 写入用量记录
func (s *GormStore) InsertUsage(ctx context.Context, log *UsageLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "request_id"}}, DoNothing: true}).
		Create(log).Error
	if err != nil {
		return fmt.Errorf("写入用量记录失败: %w", err)
	}
	return nil
}

// Aggregate 汇总用量
func (s *GormStore) Aggregate(ctx context.Context, userID string, since time.Time) (*Aggregate, error) {
	var agg Aggregate
	query := s.db.WithContext(ctx).Model(&UsageLog{}).
		Select(`COUNT(*) AS total_requests,
			COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0) AS success_count,
			COALESCE(SUM(CASE WHEN success THEN 0 ELSE 1 END), 0) AS failure_count,
			COALESCE(SUM(total_tokens), 0) AS total_tokens,
			COALESCE(SUM(cost), 0) AS total_cost,
			COALESCE(AVG(latency_ms), 0) AS avg_latency_ms`).
		Where("user_id = ?", userID)
	if !since.IsZero() {
		query = query.Where("created_at >= ?", since)
	}
	if err := query.Scan(&agg).Error; err != nil {
		return nil, fmt.Errorf("汇总用量失败: %w", err)
	}
	return &agg, nil
}
