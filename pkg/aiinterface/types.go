package aiinterface

import (
	"context"
	"time"
)

// RoutingPolicy 路由策略提示（仅作为偏好，网关只实现显式 provider/model 选择）
type RoutingPolicy string

const (
	RoutingUserPreference RoutingPolicy = "user-preference"
	RoutingCostOptimized  RoutingPolicy = "cost-optimized"
	RoutingPerformance    RoutingPolicy = "performance"
	RoutingQuality        RoutingPolicy = "quality"
	RoutingRoundRobin     RoutingPolicy = "round-robin"
	RoutingFallbackChain  RoutingPolicy = "fallback-chain"
)

// 请求参数默认值
const (
	DefaultMaxTokens   = 1000
	DefaultTemperature = 0.7
	DefaultTopP        = 1.0
	DefaultTimeoutMs   = 30000
)

// GenerateOptions 生成参数
type GenerateOptions struct {
	MaxTokens     int      `json:"maxTokens,omitempty" binding:"omitempty,min=1,max=32000"`
	Temperature   *float64 `json:"temperature,omitempty" binding:"omitempty,min=0,max=2"`
	TopP          *float64 `json:"topP,omitempty" binding:"omitempty,min=0,max=1"`
	StopSequences []string `json:"stopSequences,omitempty" binding:"omitempty,max=4"`
	SystemPrompt  string   `json:"systemPrompt,omitempty" binding:"omitempty,max=4000"`
}

// GenerateRequest 生成请求（调用方输入，不含身份信息，userID 单独传递）
type GenerateRequest struct {
	Prompt            string          `json:"prompt" binding:"required,min=1,max=50000"`
	Model             string          `json:"model,omitempty" binding:"omitempty,max=100"`
	Provider          string          `json:"provider,omitempty" binding:"omitempty,max=50"`
	UseUserPreference *bool           `json:"useUserPreference,omitempty"`
	RoutingPolicy     RoutingPolicy   `json:"routingPolicy,omitempty" binding:"omitempty,oneof=user-preference cost-optimized performance quality round-robin fallback-chain"`
	Options           GenerateOptions `json:"options"`
	UseCache          *bool           `json:"useCache,omitempty"`
	AllowFallback     *bool           `json:"allowFallback,omitempty"`
	TimeoutMs         int             `json:"timeout,omitempty" binding:"omitempty,min=1000,max=300000"`
}

// MaxTokens 返回生效的最大输出 Token 数
func (r *GenerateRequest) MaxTokens() int {
	if r.Options.MaxTokens > 0 {
		return r.Options.MaxTokens
	}
	return DefaultMaxTokens
}

// Temperature 返回生效的温度
func (r *GenerateRequest) Temperature() float64 {
	if r.Options.Temperature != nil {
		return *r.Options.Temperature
	}
	return DefaultTemperature
}

// TopP 返回生效的 Top P
func (r *GenerateRequest) TopP() float64 {
	if r.Options.TopP != nil {
		return *r.Options.TopP
	}
	return DefaultTopP
}

// CacheEnabled 是否允许使用缓存（默认 true）
func (r *GenerateRequest) CacheEnabled() bool {
	return r.UseCache == nil || *r.UseCache
}

// FallbackAllowed 是否允许回退（默认 true）
func (r *GenerateRequest) FallbackAllowed() bool {
	return r.AllowFallback == nil || *r.AllowFallback
}

// Timeout 返回请求级超时，未指定时返回 0
func (r *GenerateRequest) Timeout() time.Duration {
	if r.TimeoutMs <= 0 {
		return 0
	}
	return time.Duration(r.TimeoutMs) * time.Millisecond
}

// TokenUsage Token 使用情况
type TokenUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// CostBreakdown 成本明细
type CostBreakdown struct {
	PromptCost     float64 `json:"promptCost"`
	CompletionCost float64 `json:"completionCost"`
}

// CostEstimate 成本估算
type CostEstimate struct {
	Amount    float64       `json:"amount"`
	Currency  string        `json:"currency"`
	Breakdown CostBreakdown `json:"breakdown"`
}

// GenerateResult 适配器输出
type GenerateResult struct {
	Output       string        `json:"output"`
	Provider     string        `json:"provider"`
	Model        string        `json:"model"`
	Cached       bool          `json:"cached"`
	Usage        TokenUsage    `json:"usage"`
	CostEstimate CostEstimate  `json:"costEstimate"`
	Latency      time.Duration `json:"-"`
}

// Capabilities 适配器能力
type Capabilities struct {
	MaxTokens         int  `json:"maxTokens"`
	SupportsStreaming bool `json:"supportsStreaming"`
	SupportsSystem    bool `json:"supportsSystemPrompt"`
	SupportsFunctions bool `json:"supportsFunctionCalls"`
}

// HealthStatus 健康检查结果
type HealthStatus struct {
	Healthy     bool      `json:"healthy"`
	LastChecked time.Time `json:"lastChecked"`
	Latency     int64     `json:"latency,omitempty"` // 毫秒
	Message     string    `json:"message,omitempty"`
}

// RateLimit 提供方速率限制（仅供展示，网关不强制）
type RateLimit struct {
	RequestsPerMinute int `json:"requestsPerMinute"`
	RequestsPerDay    int `json:"requestsPerDay"`
}

// ProviderQuota 提供方侧配额（若提供方支持查询）
type ProviderQuota struct {
	Remaining float64   `json:"remaining"`
	Limit     float64   `json:"limit"`
	ResetAt   time.Time `json:"resetAt,omitempty"`
}

// ModelAdapter 模型适配器统一接口
// 每个具体的模型提供方集成都必须实现该接口，实现需支持并发调用
type ModelAdapter interface {
	// Provider 提供方标识（如 "openai"）
	Provider() string

	// Model 模型标识
	Model() string

	// Capabilities 返回模型能力
	Capabilities() Capabilities

	// Generate 执行生成，失败时返回 error（可以是未分类的原始错误）
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error)

	// Health 健康检查，调用方会额外施加超时
	Health(ctx context.Context) (*HealthStatus, error)

	// EstimateCost 根据 Token 用量估算成本
	EstimateCost(usage TokenUsage) CostEstimate

	// CheckQuota 查询提供方侧配额，不支持时返回 nil, nil
	CheckQuota(ctx context.Context) (*ProviderQuota, error)

	// GetRateLimit 返回速率限制信息
	GetRateLimit() RateLimit
}

// AdapterConfig 适配器配置
type AdapterConfig struct {
	Provider          string         // 提供商（openai 等）
	Model             string         // 模型标识
	APIKey            string         // API Key
	BaseURL           string         // 基础 URL
	OrgID             string         // 组织 ID（OpenAI）
	MaxRetries        int            // 最大重试次数
	InputCostPer1K    float64        // 每千输入 Token 单价（USD）
	OutputCostPer1K   float64        // 每千输出 Token 单价（USD）
	MaxTokens         int            // 模型上下文上限
	RequestsPerMinute int            // 速率限制（展示用）
	RequestsPerDay    int            // 速率限制（展示用）
	Extra             map[string]any // 额外配置
}

// ErrorType 错误类型
type ErrorType string

const (
	ErrorTypeAuth          ErrorType = "auth"           // 认证错误
	ErrorTypeRateLimit     ErrorType = "rate_limit"     // 速率限制
	ErrorTypeInvalidParams ErrorType = "invalid_params" // 参数错误
	ErrorTypeServerError   ErrorType = "server_error"   // 服务器错误
	ErrorTypeNetwork       ErrorType = "network"        // 网络错误
	ErrorTypeTimeout       ErrorType = "timeout"        // 请求超时
	ErrorTypeUnknown       ErrorType = "unknown"        // 未知错误
)

// ClientError 适配器可选返回的结构化错误
// 错误规范化优先使用其中的状态码等提示，再退回到文本匹配
type ClientError struct {
	Type       ErrorType     // 错误类型
	StatusCode int           // 上游 HTTP 状态码，未知时为 0
	RetryAfter time.Duration // 上游给出的重试间隔
	Message    string        // 错误消息
	Err        error         // 原始错误
}

// Error 实现error接口
func (e *ClientError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap 返回原始错误
func (e *ClientError) Unwrap() error {
	return e.Err
}

// IsRetryable 判断错误是否可重试
func (e *ClientError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeNetwork, ErrorTypeServerError, ErrorTypeTimeout:
		return true
	}
	return false
}
