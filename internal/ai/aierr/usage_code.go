package aierr

import (
	"errors"
	"strings"

	"aiwriter/pkg/aiinterface"
)

// UsageCode 为用量记录推导粗粒度错误码
// 与 HandleProviderError 独立：已分类的错误直接取其 Code，其余按少量子串判断
func UsageCode(err error) Code {
	if err == nil {
		return ""
	}

	var gw *GatewayError
	if errors.As(err, &gw) {
		switch gw.Code {
		case CodeProviderTimeout, CodeTimeout:
			return CodeTimeout
		case CodeQuotaExceeded, CodeUnauthorized, CodeRateLimit, CodeNoAdapter:
			return gw.Code
		}
	}

	var ce *aiinterface.ClientError
	if errors.As(err, &ce) {
		switch ce.Type {
		case aiinterface.ErrorTypeTimeout:
			return CodeTimeout
		case aiinterface.ErrorTypeAuth:
			return CodeUnauthorized
		case aiinterface.ErrorTypeRateLimit:
			return CodeRateLimit
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"):
		return CodeTimeout
	case strings.Contains(msg, "quota"):
		return CodeQuotaExceeded
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "401"):
		return CodeUnauthorized
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "429"):
		return CodeRateLimit
	case strings.Contains(msg, "no suitable adapter"):
		return CodeNoAdapter
	}
	return CodeUnknown
}
