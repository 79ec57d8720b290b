// Package ai 实现 AI 网关核心：适配器注册与选择、带超时的调用执行、健康检查与用量投递。
package ai

import (
	"errors"
	"time"

	"aiwriter/internal/usage"
	"aiwriter/pkg/aiinterface"
)

// 重新导出 aiinterface 包的类型，网关使用者无需直接依赖 pkg 包
type (
	ModelAdapter    = aiinterface.ModelAdapter
	GenerateRequest = aiinterface.GenerateRequest
	GenerateResult  = aiinterface.GenerateResult
	TokenUsage      = aiinterface.TokenUsage
	CostEstimate    = aiinterface.CostEstimate
	HealthStatus    = aiinterface.HealthStatus
	AdapterConfig   = aiinterface.AdapterConfig
	AdapterFactory  = aiinterface.AdapterFactory
)

// UsageSink 用量记录投递口，网关只投递不等待
type UsageSink = usage.Sink

var (
	// ErrAdapterRequired 注册空适配器
	ErrAdapterRequired = errors.New("adapter is required")
	// ErrEmptyResult 适配器既未返回结果也未返回错误
	ErrEmptyResult = errors.New("adapter returned no result")
)

// GenerateResponse 网关生成响应
type GenerateResponse struct {
	Output       string       `json:"output"`
	Provider     string       `json:"provider"`
	Model        string       `json:"model"`
	Cached       bool         `json:"cached"`
	Usage        TokenUsage   `json:"usage"`
	Latency      int64        `json:"latency"` // 毫秒
	CostEstimate CostEstimate `json:"costEstimate"`
	Timestamp    time.Time    `json:"timestamp"`
}

// ProviderInfo 已注册适配器概览
type ProviderInfo struct {
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	IsDefault bool   `json:"isDefault"`
}
