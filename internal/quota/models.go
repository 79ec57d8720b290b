package quota

import (
	"time"

	"gorm.io/gorm"
)

// UserQuota 用户配额，按用户唯一
type UserQuota struct {
	ID     string `json:"id" gorm:"type:varchar(36);primaryKey"`
	UserID string `json:"userId" gorm:"type:varchar(64);uniqueIndex;not null"`
	Tier   string `json:"tier" gorm:"type:varchar(32);default:free"`

	// 日请求
	DailyRequestLimit int64     `json:"dailyRequestLimit" gorm:"not null"`
	DailyRequestCount int64     `json:"dailyRequestCount" gorm:"default:0"`
	DailyResetAt      time.Time `json:"dailyResetAt" gorm:"not null"`

	// 月请求与月花费
	MonthlyRequestLimit int64     `json:"monthlyRequestLimit" gorm:"not null"`
	MonthlyRequestCount int64     `json:"monthlyRequestCount" gorm:"default:0"`
	MonthlySpendLimit   float64   `json:"monthlySpendLimit" gorm:"type:decimal(12,4);not null"`
	MonthlySpendAmount  float64   `json:"monthlySpendAmount" gorm:"type:decimal(12,6);default:0"`
	MonthlyResetAt      time.Time `json:"monthlyResetAt" gorm:"not null"`

	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (UserQuota) TableName() string {
	return "user_quotas"
}

// AutoMigrate 创建配额表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&UserQuota{})
}

// Limits 管理员覆盖的限额，nil 字段保持不变
type Limits struct {
	DailyRequests   *int64   `json:"dailyRequests,omitempty" binding:"omitempty,min=0"`
	MonthlyRequests *int64   `json:"monthlyRequests,omitempty" binding:"omitempty,min=0"`
	MonthlySpend    *float64 `json:"monthlySpend,omitempty" binding:"omitempty,min=0"`
}

// IsEmpty 是否未设置任何字段
func (l Limits) IsEmpty() bool {
	return l.DailyRequests == nil && l.MonthlyRequests == nil && l.MonthlySpend == nil
}

// NextDailyReset 下一个 UTC 零点
func NextDailyReset(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
}

// NextMonthlyReset 下个月 1 日 UTC 零点
func NextMonthlyReset(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}
