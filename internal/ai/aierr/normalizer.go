package aierr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"aiwriter/pkg/aiinterface"
)

// providerHints 从结构化错误中提取的提示信息
type providerHints struct {
	statusCode int
	retryAfter time.Duration
	errType    aiinterface.ErrorType
}

// errorRule 文本模式 -> 处理函数
type errorRule struct {
	name    string
	pattern *regexp.Regexp
	handle  func(msg, provider string, hints providerHints) *GatewayError
}

var (
	retryAfterPattern   = regexp.MustCompile(`(?i)retry[\s-]*after\D{0,10}?(\d+(?:\.\d+)?)\s*(ms|s|sec|seconds?)?`)
	modelNamePattern    = regexp.MustCompile("(?i)model\\s*[:=]?\\s*[`'\"]?([\\w.\\-:/]+)[`'\"]?\\s+(?:was\\s+|is\\s+)?(?:not found|does not exist)")
	maxContextPattern   = regexp.MustCompile(`(?i)max(?:imum)?(?:\s+context)?(?:\s+length)?(?:\s+is)?\D{0,12}?(\d+)`)
	actualTokensPattern = regexp.MustCompile(`(?i)(?:got|requested|resulted in|actual|you provided)\D{0,12}?(\d+)`)
)

// errorRules 按顺序匹配，首个命中生效
var errorRules = []errorRule{
	{
		name:    "timeout",
		pattern: regexp.MustCompile(`(?i)timeout|timed out|etimedout|econnreset|connection reset|deadline exceeded`),
		handle: func(_ string, provider string, _ providerHints) *GatewayError {
			return NewProviderTimeout(provider, DefaultProviderTimeout)
		},
	},
	{
		name:    "rate_limit",
		pattern: regexp.MustCompile(`(?i)rate[\s_-]*limit|\b429\b|too many requests`),
		handle: func(msg, provider string, hints providerHints) *GatewayError {
			retryAfter := hints.retryAfter
			if retryAfter <= 0 {
				retryAfter = parseRetryAfter(msg)
			}
			return NewRateLimitExceeded(provider, retryAfter)
		},
	},
	{
		name:    "unauthorized",
		pattern: regexp.MustCompile(`(?i)unauthori[sz]ed|\b401\b|invalid api key|incorrect api key`),
		handle: func(msg, provider string, _ providerHints) *GatewayError {
			return NewProviderError(provider, fmt.Sprintf("Provider %s rejected the credentials", provider),
				CodeUnauthorized, map[string]any{"originalError": msg})
		},
	},
	{
		name:    "model_not_found",
		pattern: regexp.MustCompile(`(?i)model.*(?:not found|does not exist)`),
		handle: func(msg, provider string, _ providerHints) *GatewayError {
			return NewModelNotFound(provider, parseModelName(msg))
		},
	},
	{
		name:    "context_length",
		pattern: regexp.MustCompile(`(?i)context[\s_-]*length|too long|maximum context|context window`),
		handle: func(msg, _ string, _ providerHints) *GatewayError {
			maxTokens, actual := parseContextTokens(msg)
			return NewContextLengthExceeded(maxTokens, actual)
		},
	},
	{
		name:    "content_filter",
		pattern: regexp.MustCompile(`(?i)content[\s_-]*filter|safety|content policy|flagged`),
		handle: func(msg, provider string, _ providerHints) *GatewayError {
			return NewContentFiltered(provider, msg)
		},
	},
	{
		name:    "overloaded",
		pattern: regexp.MustCompile(`(?i)overloaded|\b503\b|service unavailable`),
		handle: func(msg, provider string, _ providerHints) *GatewayError {
			return NewProviderError(provider, fmt.Sprintf("Provider %s is overloaded, please retry later", provider),
				CodeModelOverloaded, map[string]any{"originalError": msg})
		},
	},
	{
		name:    "invalid_request",
		pattern: regexp.MustCompile(`(?i)invalid[\s_-]*param|invalid[\s_-]*request|bad request|\b400\b`),
		handle: func(msg, provider string, _ providerHints) *GatewayError {
			return NewInvalidRequest(msg, map[string]any{"provider": provider})
		},
	},
}

// HandleProviderError 把提供方原始错误规范化为 GatewayError
// 已规范化的错误原样返回；结构化状态码优先，其次按固定顺序匹配文本模式
func HandleProviderError(err error, provider string) *GatewayError {
	if err == nil {
		return nil
	}
	var gw *GatewayError
	if errors.As(err, &gw) {
		return gw
	}

	msg := err.Error()
	hints := extractHints(err)

	if errors.Is(err, context.DeadlineExceeded) {
		return withCause(NewProviderTimeout(provider, DefaultProviderTimeout), err)
	}
	if byStatus := handleByStatus(msg, provider, hints); byStatus != nil {
		return withCause(byStatus, err)
	}

	for _, rule := range errorRules {
		if rule.pattern.MatchString(msg) {
			return withCause(rule.handle(msg, provider, hints), err)
		}
	}

	switch hints.statusCode {
	case http.StatusBadRequest:
		return withCause(NewInvalidRequest(msg, map[string]any{"provider": provider}), err)
	case http.StatusNotFound:
		return withCause(NewModelNotFound(provider, parseModelName(msg)), err)
	}

	return withCause(NewProviderError(provider,
		fmt.Sprintf("Provider %s returned an error", provider),
		CodeProviderError, map[string]any{"originalError": msg}), err)
}

// handleByStatus 结构化状态码中含义明确的部分直接映射，400/404 交给文本模式细分
func handleByStatus(msg, provider string, hints providerHints) *GatewayError {
	switch {
	case hints.statusCode == http.StatusUnauthorized || hints.statusCode == http.StatusForbidden ||
		hints.errType == aiinterface.ErrorTypeAuth:
		return NewProviderError(provider, fmt.Sprintf("Provider %s rejected the credentials", provider),
			CodeUnauthorized, map[string]any{"originalError": msg, "statusCode": hints.statusCode})
	case hints.statusCode == http.StatusTooManyRequests || hints.errType == aiinterface.ErrorTypeRateLimit:
		retryAfter := hints.retryAfter
		if retryAfter <= 0 {
			retryAfter = parseRetryAfter(msg)
		}
		return NewRateLimitExceeded(provider, retryAfter)
	case hints.statusCode == http.StatusServiceUnavailable || hints.statusCode == 529:
		return NewProviderError(provider, fmt.Sprintf("Provider %s is overloaded, please retry later", provider),
			CodeModelOverloaded, map[string]any{"originalError": msg, "statusCode": hints.statusCode})
	case hints.statusCode == http.StatusGatewayTimeout || hints.statusCode == http.StatusRequestTimeout ||
		hints.errType == aiinterface.ErrorTypeTimeout:
		return NewProviderTimeout(provider, DefaultProviderTimeout)
	}
	return nil
}

func extractHints(err error) providerHints {
	var hints providerHints
	var ce *aiinterface.ClientError
	if errors.As(err, &ce) {
		hints.statusCode = ce.StatusCode
		hints.retryAfter = ce.RetryAfter
		hints.errType = ce.Type
	}
	return hints
}

func withCause(gw *GatewayError, err error) *GatewayError {
	if gw.Err == nil {
		gw.Err = err
	}
	return gw
}

// parseRetryAfter 从消息文本中解析重试间隔，未找到时返回 0
func parseRetryAfter(msg string) time.Duration {
	m := retryAfterPattern.FindStringSubmatch(msg)
	if len(m) < 2 {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || v <= 0 {
		return 0
	}
	if strings.EqualFold(m[2], "ms") {
		return time.Duration(v * float64(time.Millisecond))
	}
	return time.Duration(v * float64(time.Second))
}

// parseModelName 从消息中解析模型名，失败时返回 "unknown"
func parseModelName(msg string) string {
	m := modelNamePattern.FindStringSubmatch(msg)
	if len(m) < 2 || strings.EqualFold(m[1], "not") || strings.EqualFold(m[1], "does") {
		return unknownModelPlaceholder
	}
	return m[1]
}

// parseContextTokens 解析上下文上限和实际 Token 数，失败时使用固定默认值
func parseContextTokens(msg string) (int, int) {
	maxTokens, actual := DefaultMaxContextTokens, DefaultActualTokenCount
	if m := maxContextPattern.FindStringSubmatch(msg); len(m) == 2 {
		if v, err := strconv.Atoi(m[1]); err == nil {
			maxTokens = v
		}
	}
	if m := actualTokensPattern.FindStringSubmatch(msg); len(m) == 2 {
		if v, err := strconv.Atoi(m[1]); err == nil {
			actual = v
		}
	}
	return maxTokens, actual
}
