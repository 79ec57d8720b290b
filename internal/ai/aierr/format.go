package aierr

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ErrorBody HTTP 边界的错误结构
type ErrorBody struct {
	Code      Code           `json:"code"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// ErrorResponse HTTP 错误响应
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   ErrorBody `json:"error"`
}

// AsGatewayError 把任意错误转换为 GatewayError，无法识别的视为内部错误
func AsGatewayError(err error) *GatewayError {
	if err == nil {
		return nil
	}
	var gw *GatewayError
	if errors.As(err, &gw) {
		return gw
	}
	return NewInternal(err)
}

// FormatErrorResponse 渲染错误响应，返回 HTTP 状态码和响应体
// exposeMetadata 为 false 时（生产环境）内部错误不携带原始细节
func FormatErrorResponse(err error, exposeMetadata bool) (int, ErrorResponse) {
	gw := AsGatewayError(err)
	body := ErrorBody{
		Code:      gw.Code,
		Message:   gw.Message,
		Timestamp: gw.Timestamp,
	}
	if !gw.Operational && !exposeMetadata {
		body.Message = "Internal server error"
	}
	if exposeMetadata && len(gw.Metadata) > 0 {
		body.Metadata = gw.Metadata
	} else if gw.Operational && len(gw.Metadata) > 0 {
		body.Metadata = publicMetadata(gw.Metadata)
	}
	status := gw.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return status, ErrorResponse{Success: false, Error: body}
}

// publicMetadata 去掉原始上游错误文本
func publicMetadata(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		if k == "originalError" {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// LogError 按错误性质记录日志：可预期错误按状态码分级，非预期错误记为 error
func LogError(logger *zap.Logger, err error, fields ...zap.Field) {
	if logger == nil || err == nil {
		return
	}
	gw := AsGatewayError(err)
	fields = append(fields,
		zap.String("code", string(gw.Code)),
		zap.Int("status", gw.Status),
		zap.Bool("operational", gw.Operational),
	)
	if len(gw.Metadata) > 0 {
		fields = append(fields, zap.Any("metadata", gw.Metadata))
	}

	switch {
	case !gw.Operational:
		logger.Error(gw.Message, append(fields, zap.Error(err))...)
	case gw.Status >= http.StatusInternalServerError:
		logger.Warn(gw.Message, fields...)
	default:
		logger.Info(gw.Message, fields...)
	}
}
