// Package aierr 定义 AI 网关的封闭错误分类，以及把各提供方原始错误规范化到该分类的工具。
package aierr

import (
	"fmt"
	"net/http"
	"time"
)

// Code 错误码
type Code string

const (
	CodeInvalidRequest        Code = "INVALID_REQUEST"
	CodeNoAdapter             Code = "NO_ADAPTER"
	CodeProviderTimeout       Code = "PROVIDER_TIMEOUT"
	CodeProviderError         Code = "PROVIDER_ERROR"
	CodeUnauthorized          Code = "UNAUTHORIZED"
	CodeModelOverloaded       Code = "MODEL_OVERLOADED"
	CodeModelNotFound         Code = "MODEL_NOT_FOUND"
	CodeContextLengthExceeded Code = "CONTEXT_LENGTH_EXCEEDED"
	CodeContentFiltered       Code = "CONTENT_FILTERED"
	CodeRateLimit             Code = "RATE_LIMIT"
	CodeQuotaExceeded         Code = "QUOTA_EXCEEDED"
	CodeTimeout               Code = "TIMEOUT"
	CodeInternal              Code = "INTERNAL_ERROR"
	CodeUnknown               Code = "UNKNOWN"
)

// 配额类型
const (
	QuotaTypeDaily           = "daily"
	QuotaTypeMonthlyRequests = "monthly_requests"
	QuotaTypeMonthlySpend    = "monthly_spend"
)

// 解析失败时使用的固定参考值
const (
	DefaultProviderTimeout  = 30 * time.Second
	DefaultMaxContextTokens = 4096
	DefaultActualTokenCount = 5000
	unknownModelPlaceholder = "unknown"
)

// GatewayError 网关统一错误
type GatewayError struct {
	Code        Code           `json:"code"`
	Message     string         `json:"message"`
	Status      int            `json:"-"`
	Operational bool           `json:"-"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Err         error          `json:"-"`
}

// Error 实现 error 接口
func (e *GatewayError) Error() string {
	return e.Message
}

// Unwrap 返回原始错误
func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Meta 读取元数据字段
func (e *GatewayError) Meta(key string) any {
	if e.Metadata == nil {
		return nil
	}
	return e.Metadata[key]
}

func newError(code Code, status int, operational bool, msg string, meta map[string]any) *GatewayError {
	return &GatewayError{
		Code:        code,
		Message:     msg,
		Status:      status,
		Operational: operational,
		Metadata:    meta,
		Timestamp:   time.Now().UTC(),
	}
}

// NewInvalidRequest 请求参数错误
func NewInvalidRequest(msg string, meta map[string]any) *GatewayError {
	return newError(CodeInvalidRequest, http.StatusBadRequest, true, msg, meta)
}

// NewNoAdapterFound 找不到可用适配器
func NewNoAdapterFound(provider, model string) *GatewayError {
	return newError(CodeNoAdapter, http.StatusServiceUnavailable, true,
		fmt.Sprintf("No suitable adapter found for provider=%q model=%q", provider, model),
		map[string]any{"provider": provider, "model": model})
}

// NewProviderTimeout 提供方超时
func NewProviderTimeout(provider string, timeout time.Duration) *GatewayError {
	return newError(CodeProviderTimeout, http.StatusGatewayTimeout, true,
		fmt.Sprintf("Provider %s timeout after %dms", provider, timeout.Milliseconds()),
		map[string]any{"provider": provider, "timeoutMs": timeout.Milliseconds()})
}

// NewProviderError 通用提供方错误，tag 为空时使用 PROVIDER_ERROR
func NewProviderError(provider, msg string, tag Code, meta map[string]any) *GatewayError {
	if tag == "" {
		tag = CodeProviderError
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["provider"] = provider
	status := http.StatusBadGateway
	if tag == CodeModelOverloaded {
		status = http.StatusServiceUnavailable
	}
	return newError(tag, status, true, msg, meta)
}

// NewModelNotFound 模型不存在
func NewModelNotFound(provider, model string) *GatewayError {
	if model == "" {
		model = unknownModelPlaceholder
	}
	return newError(CodeModelNotFound, http.StatusNotFound, true,
		fmt.Sprintf("Model %s not found on provider %s", model, provider),
		map[string]any{"provider": provider, "model": model})
}

// NewContextLengthExceeded 上下文超长
func NewContextLengthExceeded(maxTokens, actualTokens int) *GatewayError {
	return newError(CodeContextLengthExceeded, http.StatusBadRequest, true,
		fmt.Sprintf("Context length exceeded: maximum %d tokens, got %d", maxTokens, actualTokens),
		map[string]any{"maxTokens": maxTokens, "actualTokens": actualTokens})
}

// NewContentFiltered 内容被安全策略拦截
func NewContentFiltered(provider, reason string) *GatewayError {
	return newError(CodeContentFiltered, http.StatusBadRequest, true,
		"Content was blocked by the provider's safety filter",
		map[string]any{"provider": provider, "reason": reason})
}

// NewRateLimitExceeded 提供方限流，retryAfter 为 0 表示未知
func NewRateLimitExceeded(provider string, retryAfter time.Duration) *GatewayError {
	meta := map[string]any{"provider": provider}
	msg := fmt.Sprintf("Rate limit exceeded for provider %s", provider)
	if retryAfter > 0 {
		secs := int(retryAfter / time.Second)
		meta["retryAfter"] = secs
		msg = fmt.Sprintf("%s, retry after %ds", msg, secs)
	}
	return newError(CodeRateLimit, http.StatusTooManyRequests, true, msg, meta)
}

// NewInternal 非预期的内部错误
func NewInternal(err error) *GatewayError {
	msg := "Internal server error"
	if err != nil {
		msg = err.Error()
	}
	e := newError(CodeInternal, http.StatusInternalServerError, false, msg, nil)
	e.Err = err
	return e
}

// QuotaExceededError 用户配额超限
type QuotaExceededError struct {
	QuotaType string
	Limit     float64
	Used      float64
	ResetAt   time.Time

	gw *GatewayError
}

// NewQuotaExceeded 创建配额超限错误
func NewQuotaExceeded(quotaType string, limit, used float64, resetAt time.Time) *QuotaExceededError {
	e := &QuotaExceededError{QuotaType: quotaType, Limit: limit, Used: used, ResetAt: resetAt}
	e.gw = newError(CodeQuotaExceeded, http.StatusTooManyRequests, true, e.Error(), map[string]any{
		"quotaType": quotaType,
		"limit":     limit,
		"used":      used,
		"resetAt":   resetAt,
	})
	return e
}

func (e *QuotaExceededError) Error() string {
	label := map[string]string{
		QuotaTypeDaily:           "Daily request",
		QuotaTypeMonthlyRequests: "Monthly request",
		QuotaTypeMonthlySpend:    "Monthly spend",
	}[e.QuotaType]
	if label == "" {
		label = "Quota"
	}
	if e.QuotaType == QuotaTypeMonthlySpend {
		return fmt.Sprintf("%s quota exceeded ($%.2f/$%.2f), resets at %s",
			label, e.Used, e.Limit, e.ResetAt.UTC().Format(time.RFC3339))
	}
	return fmt.Sprintf("%s quota exceeded (%d/%d), resets at %s",
		label, int64(e.Used), int64(e.Limit), e.ResetAt.UTC().Format(time.RFC3339))
}

// Unwrap 暴露底层 GatewayError，便于 errors.As 统一处理
func (e *QuotaExceededError) Unwrap() error {
	return e.gw
}
