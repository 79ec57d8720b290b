package usage

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Provider 模型提供方持久化身份
type Provider struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name        string    `gorm:"type:varchar(50);uniqueIndex;not null" json:"name"`
	DisplayName string    `gorm:"type:varchar(100)" json:"displayName"`
	IsActive    bool      `gorm:"default:true" json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (Provider) TableName() string {
	return "ai_providers"
}

// UsageLog 一次生成尝试的用量记录（只追加）
type UsageLog struct {
	ID               string            `gorm:"type:varchar(36);primaryKey" json:"id"`
	RequestID        string            `gorm:"type:varchar(36);uniqueIndex;not null" json:"requestId"`
	UserID           string            `gorm:"type:varchar(64);index:idx_usage_user_created,priority:1;not null" json:"userId"`
	ProviderID       string            `gorm:"type:varchar(36);index" json:"providerId"`
	ProviderName     string            `gorm:"type:varchar(50)" json:"provider"`
	Model            string            `gorm:"type:varchar(100)" json:"model"`
	Operation        string            `gorm:"type:varchar(50)" json:"operation"`
	PromptExcerpt    string            `gorm:"type:text" json:"promptExcerpt"`
	PromptTokens     int               `gorm:"default:0" json:"promptTokens"`
	CompletionTokens int               `gorm:"default:0" json:"completionTokens"`
	TotalTokens      int               `gorm:"default:0" json:"totalTokens"`
	LatencyMs        int64             `json:"latencyMs"`
	Success          bool              `gorm:"index" json:"success"`
	Cost             float64           `gorm:"type:decimal(12,6);default:0" json:"cost"`
	ErrorCode        string            `gorm:"type:varchar(50)" json:"errorCode,omitempty"`
	ErrorMessage     string            `gorm:"type:text" json:"errorMessage,omitempty"`
	Metadata         datatypes.JSONMap `gorm:"type:json" json:"metadata,omitempty"`
	CreatedAt        time.Time         `gorm:"index:idx_usage_user_created,priority:2" json:"createdAt"`
}

// TableName 指定表名
func (UsageLog) TableName() string {
	return "ai_usage_logs"
}

// AutoMigrate 创建用量相关表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Provider{}, &UsageLog{})
}
