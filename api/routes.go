package api

import (
	"aiwriter/internal/auth"
	middlewarepkg "aiwriter/internal/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes 注册所有 API 路由
func RegisterRoutes(router *gin.Engine, container *AppContainer, handlers *Handlers) {
	authMiddleware := auth.AuthMiddleware(container.JWTService)

	api := router.Group("/api")
	api.Use(authMiddleware)

	registerAuthRoutes(api, handlers)
	registerAIRoutes(api, container, handlers)
	registerAdminRoutes(api, handlers)
}

// registerAuthRoutes 注册认证相关路由
func registerAuthRoutes(apiGroup *gin.RouterGroup, h *Handlers) {
	authGroup := apiGroup.Group("/auth")
	{
		authGroup.GET("/me", h.Auth.Me)
		authGroup.POST("/logout", h.Auth.Logout)
	}
}

// registerAIRoutes 注册 AI 网关路由
func registerAIRoutes(apiGroup *gin.RouterGroup, c *AppContainer, h *Handlers) {
	aiGroup := apiGroup.Group("/ai")
	{
		generate := []gin.HandlerFunc{auth.RequireActiveUser()}
		if c.RateLimiter != nil {
			generate = append(generate,
				middlewarepkg.RateLimitMiddleware(c.RateLimiter, auth.UserIDKey, c.Config.Server.ExposeErrorDetails))
		}
		generate = append(generate, h.Gateway.Generate)
		aiGroup.POST("/generate", generate...)

		aiGroup.GET("/health", h.Gateway.Health)
		aiGroup.GET("/providers", h.Gateway.ListProviders)

		aiGroup.GET("/quota", h.Quota.GetMyQuota)
		aiGroup.GET("/quota/tiers", h.Quota.ListTiers)
		aiGroup.GET("/usage/stats", h.Usage.GetMyStats)
	}
}

// registerAdminRoutes 注册管理员路由
func registerAdminRoutes(apiGroup *gin.RouterGroup, h *Handlers) {
	admin := apiGroup.Group("/admin")
	admin.Use(auth.RequireRole(auth.RoleAdmin))
	{
		admin.GET("/quotas/:userId", h.Quota.GetUserQuota)
		admin.PUT("/quotas/:userId", h.Quota.UpdateLimits)
		admin.POST("/quotas/:userId/reset", h.Quota.Reset)
		admin.PUT("/quotas/:userId/tier", h.Quota.ApplyTier)
		admin.GET("/usage/:userId", h.Usage.GetUserStats)
	}
}
