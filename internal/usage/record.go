package usage

import (
	"math"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"aiwriter/internal/ai/aierr"
	"aiwriter/pkg/aiinterface"

	"github.com/google/uuid"
)

// DefaultPromptExcerptRunes 提示词摘录上限（字符数）
const DefaultPromptExcerptRunes = 2000

// OperationGenerate 文本生成操作
const OperationGenerate = "generate"

// Record 一次生成尝试的用量记录，成功和失败共用
// 作为任务载荷序列化，字段均可 JSON 编码
type Record struct {
	RequestID        string         `json:"requestId"`
	UserID           string         `json:"userId"`
	Provider         string         `json:"provider"`
	Model            string         `json:"model"`
	Operation        string         `json:"operation"`
	Prompt           string         `json:"prompt"`
	PromptTokens     int            `json:"promptTokens"`
	CompletionTokens int            `json:"completionTokens"`
	TotalTokens      int            `json:"totalTokens"`
	Latency          time.Duration  `json:"latency"`
	Success          bool           `json:"success"`
	Cost             float64        `json:"cost"`
	ErrorCode        string         `json:"errorCode,omitempty"`
	ErrorMessage     string         `json:"errorMessage,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
}

// NewSuccessRecord 根据成功结果构建用量记录
func NewSuccessRecord(userID string, req *aiinterface.GenerateRequest, res *aiinterface.GenerateResult, latency time.Duration) *Record {
	rec := baseRecord(userID, req, res.Provider, res.Model, latency)
	rec.Success = true
	rec.PromptTokens = res.Usage.PromptTokens
	rec.CompletionTokens = res.Usage.CompletionTokens
	rec.TotalTokens = res.Usage.TotalTokens
	rec.Cost = res.CostEstimate.Amount
	return rec
}

// NewFailureRecord 根据失败构建用量记录，Token 与成本均为 0
func NewFailureRecord(userID string, req *aiinterface.GenerateRequest, provider, model string, err error, latency time.Duration) *Record {
	rec := baseRecord(userID, req, provider, model, latency)
	rec.Success = false
	rec.ErrorCode = string(aierr.UsageCode(err))
	if err != nil {
		rec.ErrorMessage = err.Error()
	}
	return rec
}

func baseRecord(userID string, req *aiinterface.GenerateRequest, provider, model string, latency time.Duration) *Record {
	rec := &Record{
		RequestID: uuid.New().String(),
		UserID:    userID,
		Provider:  provider,
		Model:     model,
		Operation: OperationGenerate,
		Latency:   latency,
		CreatedAt: time.Now().UTC(),
	}
	if req != nil {
		rec.Prompt = req.Prompt
		rec.Metadata = requestMetadata(req)
	}
	return rec
}

// requestMetadata 记录请求参数快照
func requestMetadata(req *aiinterface.GenerateRequest) map[string]any {
	meta := map[string]any{
		"temperature":   req.Temperature(),
		"maxTokens":     req.MaxTokens(),
		"topP":          req.TopP(),
		"useCache":      req.CacheEnabled(),
		"allowFallback": req.FallbackAllowed(),
	}
	if req.RoutingPolicy != "" {
		meta["routingPolicy"] = string(req.RoutingPolicy)
	}
	if req.TimeoutMs > 0 {
		meta["timeout"] = req.TimeoutMs
	}
	return meta
}

// excerpt 截取前 limit 个字符，不会切断多字节字符
func excerpt(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

// latencyMillis 四舍五入为整数毫秒
func latencyMillis(d time.Duration) int64 {
	return int64(math.Round(float64(d) / float64(time.Millisecond)))
}

// displayName 由提供方标识生成展示名，如 "openai" -> "Openai"
func displayName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return name
	}
	r, size := utf8.DecodeRuneInString(name)
	return string(unicode.ToUpper(r)) + name[size:]
}
