// Package common 提供 HTTP 处理器共用的响应封装。
package common

import (
	"net/http"
	"time"

	"aiwriter/internal/ai/aierr"
	"aiwriter/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// APIResponse 成功响应结构
type APIResponse struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SuccessResponse 构造成功响应
func SuccessResponse(data any) APIResponse {
	return APIResponse{Success: true, Data: data, Timestamp: time.Now().UTC()}
}

// ResponseSuccess 返回成功响应
func ResponseSuccess(c *gin.Context, data any) {
	c.JSON(http.StatusOK, SuccessResponse(data))
}

// ResponseError 渲染网关错误，未分类错误按内部错误处理
// exposeDetails 为 true 时返回完整元数据（仅开发环境）
func ResponseError(c *gin.Context, err error, exposeDetails bool) {
	aierr.LogError(logger.WithContext(c.Request.Context()), err,
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
	)
	status, body := aierr.FormatErrorResponse(err, exposeDetails)
	c.JSON(status, body)
}

// AbortWithError 渲染错误并中断后续处理
func AbortWithError(c *gin.Context, err error, exposeDetails bool) {
	ResponseError(c, err, exposeDetails)
	c.Abort()
}

// ResponseBadRequest 参数错误
func ResponseBadRequest(c *gin.Context, err error) {
	ResponseError(c, aierr.NewInvalidRequest(err.Error(), nil), false)
}
