package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"aiwriter/pkg/aiinterface"

	openai "github.com/sashabaranov/go-openai"
)

// tryAgainPattern 匹配限流消息中的 "try again in 20s" / "try again in 350ms"
var tryAgainPattern = regexp.MustCompile(`(?i)try again in\s*(\d+(?:\.\d+)?)(ms|s|m)`)

const (
	defaultMaxRetries = 2
	defaultBackoff    = time.Second
	currencyUSD       = "USD"
)

// Adapter 基于 OpenAI 兼容协议的模型适配器
type Adapter struct {
	client     *openai.Client
	provider   string
	model      string
	maxRetries int
	backoff    time.Duration
	pricing    Pricing
	caps       aiinterface.Capabilities
	rateLimit  aiinterface.RateLimit
}

// NewAdapter 创建适配器
func NewAdapter(config *aiinterface.AdapterConfig) (*Adapter, error) {
	if config == nil {
		return nil, &aiinterface.ClientError{Type: aiinterface.ErrorTypeInvalidParams, Message: "适配器配置不能为空"}
	}
	provider := config.Provider
	if provider == "" {
		provider = ProviderOpenAI
	}
	if config.APIKey == "" && provider != ProviderOllama {
		return nil, &aiinterface.ClientError{
			Type:    aiinterface.ErrorTypeAuth,
			Message: fmt.Sprintf("%s API Key 不能为空", provider),
		}
	}
	if config.Model == "" {
		return nil, &aiinterface.ClientError{Type: aiinterface.ErrorTypeInvalidParams, Message: "模型标识不能为空"}
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if baseURL := resolveBaseURL(provider, config.BaseURL); baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	if config.OrgID != "" {
		clientConfig.OrgID = config.OrgID
	}

	maxRetries := config.MaxRetries
	if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	pricing := lookupPricing(config.Model)
	if config.InputCostPer1K > 0 {
		pricing.InputPer1K = config.InputCostPer1K
	}
	if config.OutputCostPer1K > 0 {
		pricing.OutputPer1K = config.OutputCostPer1K
	}

	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = contextWindow(config.Model)
	}

	rpm, rpd := config.RequestsPerMinute, config.RequestsPerDay
	if rpm <= 0 {
		rpm = 3500
	}
	if rpd <= 0 {
		rpd = 10000
	}

	return &Adapter{
		client:     openai.NewClientWithConfig(clientConfig),
		provider:   provider,
		model:      config.Model,
		maxRetries: maxRetries,
		backoff:    defaultBackoff,
		pricing:    pricing,
		caps: aiinterface.Capabilities{
			MaxTokens:         maxTokens,
			SupportsStreaming: true,
			SupportsSystem:    true,
			SupportsFunctions: provider == ProviderOpenAI,
		},
		rateLimit: aiinterface.RateLimit{RequestsPerMinute: rpm, RequestsPerDay: rpd},
	}, nil
}

// Provider 提供方标识
func (a *Adapter) Provider() string { return a.provider }

// Model 模型标识
func (a *Adapter) Model() string { return a.model }

// Capabilities 模型能力
func (a *Adapter) Capabilities() aiinterface.Capabilities { return a.caps }

// GetRateLimit 速率限制（仅展示）
func (a *Adapter) GetRateLimit() aiinterface.RateLimit { return a.rateLimit }

// CheckQuota OpenAI 协议没有配额查询接口
func (a *Adapter) CheckQuota(context.Context) (*aiinterface.ProviderQuota, error) {
	return nil, nil
}

// Generate 执行一次对话补全
func (a *Adapter) Generate(ctx context.Context, req *aiinterface.GenerateRequest) (*aiinterface.GenerateResult, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.Options.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.Options.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	openaiReq := openai.ChatCompletionRequest{
		Model:       a.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens(),
		Temperature: float32(req.Temperature()),
		TopP:        float32(req.TopP()),
		Stop:        req.Options.StopSequences,
	}

	// 调用 API（带重试）
	var resp openai.ChatCompletionResponse
	var err error
	for i := 0; i <= a.maxRetries; i++ {
		resp, err = a.client.CreateChatCompletion(ctx, openaiReq)
		if err == nil || !isRetryableError(err) || i == a.maxRetries {
			break
		}

		// 指数退避，ctx 结束时立即放弃
		select {
		case <-ctx.Done():
			return nil, wrapError(a.provider, ctx.Err())
		case <-time.After(a.backoff << uint(i)):
		}
	}
	if err != nil {
		return nil, wrapError(a.provider, err)
	}

	if len(resp.Choices) == 0 {
		return nil, &aiinterface.ClientError{
			Type:    aiinterface.ErrorTypeServerError,
			Message: fmt.Sprintf("%s API 返回空响应", a.provider),
		}
	}
	output := resp.Choices[0].Message.Content
	if resp.Choices[0].FinishReason == openai.FinishReasonContentFilter {
		return nil, &aiinterface.ClientError{
			Type:       aiinterface.ErrorTypeInvalidParams,
			StatusCode: http.StatusBadRequest,
			Message:    "response blocked by content filter",
		}
	}

	usage := aiinterface.TokenUsage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	if usage.TotalTokens == 0 {
		// 兼容服务可能不返回 usage，本地估算
		usage.PromptTokens = CountTokens(a.model, req.Options.SystemPrompt) + CountTokens(a.model, req.Prompt)
		usage.CompletionTokens = CountTokens(a.model, output)
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}

	model := resp.Model
	if model == "" {
		model = a.model
	}

	return &aiinterface.GenerateResult{
		Output:       output,
		Provider:     a.provider,
		Model:        model,
		Usage:        usage,
		CostEstimate: a.EstimateCost(usage),
	}, nil
}

// Health 通过列出模型检查连通性
func (a *Adapter) Health(ctx context.Context) (*aiinterface.HealthStatus, error) {
	start := time.Now()
	_, err := a.client.ListModels(ctx)
	status := &aiinterface.HealthStatus{
		Healthy:     err == nil,
		LastChecked: time.Now().UTC(),
		Latency:     time.Since(start).Milliseconds(),
	}
	if err != nil {
		status.Message = wrapError(a.provider, err).Error()
	}
	return status, nil
}

// EstimateCost 按每千 Token 单价估算成本
func (a *Adapter) EstimateCost(usage aiinterface.TokenUsage) aiinterface.CostEstimate {
	promptCost := float64(usage.PromptTokens) / 1000 * a.pricing.InputPer1K
	completionCost := float64(usage.CompletionTokens) / 1000 * a.pricing.OutputPer1K
	return aiinterface.CostEstimate{
		Amount:   promptCost + completionCost,
		Currency: currencyUSD,
		Breakdown: aiinterface.CostBreakdown{
			PromptCost:     promptCost,
			CompletionCost: completionCost,
		},
	}
}

// isRetryableError 判断错误是否可重试：限流、网络和服务端错误
func isRetryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if status := statusCode(err); status != 0 {
		return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection") || strings.Contains(msg, "eof")
}

// statusCode 提取上游 HTTP 状态码
func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// wrapError 包装为结构化错误，保留状态码供错误规范化使用
func wrapError(provider string, err error) *aiinterface.ClientError {
	status := statusCode(err)
	msg := strings.ToLower(err.Error())

	var errType aiinterface.ErrorType
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		errType = aiinterface.ErrorTypeTimeout
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		errType = aiinterface.ErrorTypeAuth
	case status == http.StatusTooManyRequests || strings.Contains(msg, "rate limit"):
		errType = aiinterface.ErrorTypeRateLimit
	case status == http.StatusBadRequest || status == http.StatusNotFound:
		errType = aiinterface.ErrorTypeInvalidParams
	case status >= http.StatusInternalServerError:
		errType = aiinterface.ErrorTypeServerError
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "connection"):
		errType = aiinterface.ErrorTypeNetwork
	default:
		errType = aiinterface.ErrorTypeUnknown
	}

	ce := &aiinterface.ClientError{
		Type:       errType,
		StatusCode: status,
		Message:    fmt.Sprintf("%s API 错误", provider),
		Err:        err,
	}
	if errType == aiinterface.ErrorTypeRateLimit {
		ce.RetryAfter = retryAfterHint(err.Error())
	}
	return ce
}

// retryAfterHint 从限流消息中取重试间隔
// go-openai 的错误类型不带响应头，Retry-After 只能从消息里读
func retryAfterHint(msg string) time.Duration {
	m := tryAgainPattern.FindStringSubmatch(msg)
	if len(m) < 3 {
		return 0
	}
	d, err := time.ParseDuration(m[1] + m[2])
	if err != nil || d < 0 {
		return 0
	}
	return d
}
