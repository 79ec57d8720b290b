package quota

import (
	"errors"
	"sort"
)

// ErrUnknownTier 未定义的套餐
var ErrUnknownTier = errors.New("unknown quota tier")

// 套餐名称
const (
	TierFree       = "free"
	TierBasic      = "basic"
	TierPro        = "pro"
	TierEnterprise = "enterprise"
)

// Tier 套餐默认限额
type Tier struct {
	Name            string  `json:"name" mapstructure:"name"`
	DailyRequests   int64   `json:"dailyRequests" mapstructure:"daily_requests"`
	MonthlyRequests int64   `json:"monthlyRequests" mapstructure:"monthly_requests"`
	MonthlySpend    float64 `json:"monthlySpend" mapstructure:"monthly_spend"`
}

// DefaultTiers 内置套餐
func DefaultTiers() map[string]Tier {
	return map[string]Tier{
		TierFree:       {Name: TierFree, DailyRequests: 1000, MonthlyRequests: 10000, MonthlySpend: 10},
		TierBasic:      {Name: TierBasic, DailyRequests: 5000, MonthlyRequests: 100000, MonthlySpend: 50},
		TierPro:        {Name: TierPro, DailyRequests: 20000, MonthlyRequests: 500000, MonthlySpend: 200},
		TierEnterprise: {Name: TierEnterprise, DailyRequests: 100000, MonthlyRequests: 3000000, MonthlySpend: 2000},
	}
}

// TierNames 按名称排序的套餐列表
func TierNames(tiers map[string]Tier) []string {
	names := make([]string, 0, len(tiers))
	for name := range tiers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
