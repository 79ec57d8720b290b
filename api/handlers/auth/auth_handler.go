// Package auth 提供令牌注销与当前身份查询接口，令牌由外部身份服务签发。
package auth

import (
	"context"

	"aiwriter/api/handlers/common"
	"aiwriter/internal/auth"
	"aiwriter/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TokenInvalidator 令牌注销能力
type TokenInvalidator interface {
	InvalidateToken(ctx context.Context, tokenString string) error
}

// AuthHandler 认证 Handler
type AuthHandler struct {
	tokens TokenInvalidator
}

// NewAuthHandler 创建 AuthHandler 实例
func NewAuthHandler(tokens TokenInvalidator) *AuthHandler {
	return &AuthHandler{tokens: tokens}
}

// Logout 注销当前 Access Token
// @Summary 注销当前令牌
// @Description 把当前 Access Token 加入黑名单直至其过期，未配置 Redis 时为空操作
// @Tags Auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} common.APIResponse
// @Router /api/auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	tokenString := auth.ExtractTokenFromBearer(c.GetHeader("Authorization"))
	if tokenString != "" {
		if err := h.tokens.InvalidateToken(c.Request.Context(), tokenString); err != nil {
			// 不中断登出流程
			logger.WithContext(c.Request.Context()).Warn("注销令牌失败", zap.Error(err))
		}
	}
	common.ResponseSuccess(c, gin.H{"message": "登出成功"})
}

// Me 当前身份
// @Summary 当前身份
// @Tags Auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} common.APIResponse
// @Router /api/auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	userCtx, _ := auth.GetUserContext(c)
	common.ResponseSuccess(c, userCtx)
}
