package aierr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"aiwriter/pkg/aiinterface"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestHandleProviderError_Patterns(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		code Code
	}{
		{"超时", "dial tcp: i/o timeout", CodeProviderTimeout},
		{"连接重置", "read: connection reset by peer", CodeProviderTimeout},
		{"限流", "Error: rate limit exceeded, retry after 30", CodeRateLimit},
		{"429", "status code 429", CodeRateLimit},
		{"未授权", "401 Unauthorized", CodeUnauthorized},
		{"模型不存在", "The model `gpt-9` does not exist", CodeModelNotFound},
		{"上下文超长", "maximum context length 4096, got 5000 tokens", CodeContextLengthExceeded},
		{"内容过滤", "response blocked by content filter", CodeContentFiltered},
		{"过载", "the engine is currently overloaded", CodeModelOverloaded},
		{"参数错误", "invalid parameter: temperature", CodeInvalidRequest},
		{"未知", "something odd happened upstream", CodeProviderError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := HandleProviderError(errors.New(tt.msg), "openai")
			require.NotNil(t, gw)
			assert.Equal(t, tt.code, gw.Code)
			assert.True(t, gw.Operational)
		})
	}
}

func TestHandleProviderError_RateLimitRetryAfter(t *testing.T) {
	gw := HandleProviderError(errors.New("Error: rate limit exceeded, retry after 30"), "openai")

	assert.Equal(t, CodeRateLimit, gw.Code)
	assert.Equal(t, http.StatusTooManyRequests, gw.Status)
	assert.Equal(t, 30, gw.Meta("retryAfter"))
}

func TestHandleProviderError_RetryAfterFromHints(t *testing.T) {
	raw := &aiinterface.ClientError{
		Type:       aiinterface.ErrorTypeRateLimit,
		StatusCode: http.StatusTooManyRequests,
		RetryAfter: 12 * time.Second,
		Message:    "upstream throttled",
	}

	gw := HandleProviderError(raw, "openai")

	assert.Equal(t, CodeRateLimit, gw.Code)
	assert.Equal(t, 12, gw.Meta("retryAfter"))
}

func TestHandleProviderError_ContextLength(t *testing.T) {
	t.Run("解析上限和实际值", func(t *testing.T) {
		gw := HandleProviderError(errors.New("maximum context length 4096, got 5000 tokens"), "openai")
		assert.Equal(t, CodeContextLengthExceeded, gw.Code)
		assert.Equal(t, 4096, gw.Meta("maxTokens"))
		assert.Equal(t, 5000, gw.Meta("actualTokens"))
	})

	t.Run("OpenAI 原文", func(t *testing.T) {
		msg := "This model's maximum context length is 8192 tokens. However, your messages resulted in 9000 tokens."
		gw := HandleProviderError(errors.New(msg), "openai")
		assert.Equal(t, 8192, gw.Meta("maxTokens"))
		assert.Equal(t, 9000, gw.Meta("actualTokens"))
	})

	t.Run("无法解析时使用默认值", func(t *testing.T) {
		gw := HandleProviderError(errors.New("prompt is too long"), "openai")
		assert.Equal(t, CodeContextLengthExceeded, gw.Code)
		assert.Equal(t, DefaultMaxContextTokens, gw.Meta("maxTokens"))
		assert.Equal(t, DefaultActualTokenCount, gw.Meta("actualTokens"))
	})
}

func TestHandleProviderError_ModelName(t *testing.T) {
	gw := HandleProviderError(errors.New("model gpt-9 not found"), "openai")
	assert.Equal(t, "gpt-9", gw.Meta("model"))

	gw = HandleProviderError(errors.New("model not found"), "openai")
	assert.Equal(t, "unknown", gw.Meta("model"))
}

func TestHandleProviderError_GenericKeepsOriginal(t *testing.T) {
	gw := HandleProviderError(errors.New("weird upstream failure #42"), "openai")

	assert.Equal(t, CodeProviderError, gw.Code)
	assert.Equal(t, "weird upstream failure #42", gw.Meta("originalError"))
	assert.Equal(t, "openai", gw.Meta("provider"))
	assert.Equal(t, http.StatusBadGateway, gw.Status)
}

func TestHandleProviderError_AlreadyNormalized(t *testing.T) {
	orig := NewContentFiltered("openai", "flagged")
	wrapped := fmt.Errorf("adapter: %w", orig)

	assert.Same(t, orig, HandleProviderError(orig, "other"))
	assert.Same(t, orig, HandleProviderError(wrapped, "other"))
}

func TestHandleProviderError_StructuredStatus(t *testing.T) {
	t.Run("401 优先于文本", func(t *testing.T) {
		raw := &aiinterface.ClientError{StatusCode: http.StatusUnauthorized, Message: "request failed"}
		assert.Equal(t, CodeUnauthorized, HandleProviderError(raw, "openai").Code)
	})

	t.Run("400 交给文本模式细分", func(t *testing.T) {
		raw := &aiinterface.ClientError{StatusCode: http.StatusBadRequest, Message: "maximum context length is 100 tokens, you provided 200"}
		gw := HandleProviderError(raw, "openai")
		assert.Equal(t, CodeContextLengthExceeded, gw.Code)
		assert.Equal(t, 100, gw.Meta("maxTokens"))
		assert.Equal(t, 200, gw.Meta("actualTokens"))
	})

	t.Run("400 无匹配时为参数错误", func(t *testing.T) {
		raw := &aiinterface.ClientError{StatusCode: http.StatusBadRequest, Message: "nope"}
		assert.Equal(t, CodeInvalidRequest, HandleProviderError(raw, "openai").Code)
	})

	t.Run("context deadline", func(t *testing.T) {
		err := fmt.Errorf("call: %w", context.DeadlineExceeded)
		assert.Equal(t, CodeProviderTimeout, HandleProviderError(err, "openai").Code)
	})
}

func TestHandleProviderError_Nil(t *testing.T) {
	assert.Nil(t, HandleProviderError(nil, "openai"))
}

func TestQuotaExceededError(t *testing.T) {
	resetAt := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	err := error(NewQuotaExceeded(QuotaTypeDaily, 500, 500, resetAt))

	var qe *QuotaExceededError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, QuotaTypeDaily, qe.QuotaType)
	assert.Equal(t, float64(500), qe.Limit)
	assert.Contains(t, err.Error(), "Daily request quota exceeded (500/500)")

	var gw *GatewayError
	require.True(t, errors.As(err, &gw))
	assert.Equal(t, CodeQuotaExceeded, gw.Code)
	assert.Equal(t, http.StatusTooManyRequests, gw.Status)
	assert.Equal(t, resetAt, gw.Meta("resetAt"))
}

func TestFormatErrorResponse(t *testing.T) {
	t.Run("可预期错误", func(t *testing.T) {
		status, body := FormatErrorResponse(HandleProviderError(errors.New("weird"), "openai"), false)
		assert.Equal(t, http.StatusBadGateway, status)
		assert.False(t, body.Success)
		assert.Equal(t, CodeProviderError, body.Error.Code)
		assert.NotContains(t, body.Error.Metadata, "originalError")
	})

	t.Run("开发环境暴露原始信息", func(t *testing.T) {
		_, body := FormatErrorResponse(HandleProviderError(errors.New("weird"), "openai"), true)
		assert.Equal(t, "weird", body.Error.Metadata["originalError"])
	})

	t.Run("非预期错误隐藏细节", func(t *testing.T) {
		status, body := FormatErrorResponse(errors.New("nil pointer somewhere"), false)
		assert.Equal(t, http.StatusInternalServerError, status)
		assert.Equal(t, CodeInternal, body.Error.Code)
		assert.Equal(t, "Internal server error", body.Error.Message)
	})
}

func TestLogError_Levels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	LogError(logger, NewInvalidRequest("bad", nil))
	LogError(logger, NewProviderTimeout("openai", time.Second))
	LogError(logger, errors.New("boom"))

	entries := logs.AllUntimed()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
}

func TestUsageCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"超时文本", errors.New("Request timeout after 100ms"), CodeTimeout},
		{"网关超时错误", NewProviderTimeout("openai", time.Second), CodeTimeout},
		{"配额", errors.New("monthly quota used up"), CodeQuotaExceeded},
		{"配额超限错误", NewQuotaExceeded(QuotaTypeDaily, 1, 1, time.Now()), CodeQuotaExceeded},
		{"401", errors.New("status 401"), CodeUnauthorized},
		{"unauthorized", errors.New("Unauthorized"), CodeUnauthorized},
		{"限流", errors.New("rate limit hit"), CodeRateLimit},
		{"429", errors.New("got 429"), CodeRateLimit},
		{"结构化限流", &aiinterface.ClientError{Type: aiinterface.ErrorTypeRateLimit, Message: "slow down"}, CodeRateLimit},
		{"无适配器", NewNoAdapterFound("x", "y"), CodeNoAdapter},
		{"未知", errors.New("boom"), CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UsageCode(tt.err))
		})
	}

	assert.Equal(t, Code(""), UsageCode(nil))
}
