// Package gateway 提供 AI 生成、健康检查与提供方列表接口。
package gateway

import (
	"context"

	"aiwriter/api/handlers/common"
	"aiwriter/internal/ai"
	"aiwriter/internal/ai/aierr"
	"aiwriter/internal/auth"
	"aiwriter/internal/quota"

	"github.com/gin-gonic/gin"
)

// Generator 网关能力
type Generator interface {
	Generate(ctx context.Context, req *ai.GenerateRequest, userID string) (*ai.GenerateResponse, error)
	Health(ctx context.Context) map[string]ai.HealthStatus
	GetRegisteredProviders() []ai.ProviderInfo
	ResolveProvider(req *ai.GenerateRequest) string
}

// QuotaService 生成前后的配额操作
type QuotaService interface {
	CheckQuota(ctx context.Context, userID string) (*quota.Status, error)
	IncrementQuota(ctx context.Context, userID string, cost float64)
}

// Handler AI 网关 Handler
type Handler struct {
	gateway       Generator
	quota         QuotaService
	exposeDetails bool
}

// NewHandler 创建 Handler 实例
func NewHandler(gateway Generator, quota QuotaService, exposeDetails bool) *Handler {
	return &Handler{gateway: gateway, quota: quota, exposeDetails: exposeDetails}
}

// HealthResponse 提供方健康汇总
type HealthResponse struct {
	Healthy   bool                       `json:"healthy"`
	Providers map[string]ai.HealthStatus `json:"providers"`
}

// Generate 生成文本
// @Summary AI 文本生成
// @Description 检查配额后调用选中的模型适配器，成功后累计配额
// @Tags AI
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body ai.GenerateRequest true "生成请求"
// @Success 200 {object} common.APIResponse
// @Failure 400 {object} aierr.ErrorResponse
// @Failure 429 {object} aierr.ErrorResponse
// @Failure 504 {object} aierr.ErrorResponse
// @Router /api/ai/generate [post]
func (h *Handler) Generate(c *gin.Context) {
	userID := c.GetString(auth.UserIDKey)
	ctx := c.Request.Context()

	var req ai.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, err)
		return
	}

	if _, err := h.quota.CheckQuota(ctx, userID); err != nil {
		common.ResponseError(c, err, h.exposeDetails)
		return
	}

	resp, err := h.gateway.Generate(ctx, &req, userID)
	if err != nil {
		common.ResponseError(c, aierr.HandleProviderError(err, h.gateway.ResolveProvider(&req)), h.exposeDetails)
		return
	}

	// 客户端断开后仍需记账
	h.quota.IncrementQuota(context.WithoutCancel(ctx), userID, resp.CostEstimate.Amount)

	common.ResponseSuccess(c, resp)
}

// Health 提供方健康检查
// @Summary 提供方健康状态
// @Tags AI
// @Security BearerAuth
// @Produce json
// @Success 200 {object} common.APIResponse
// @Router /api/ai/health [get]
func (h *Handler) Health(c *gin.Context) {
	providers := h.gateway.Health(c.Request.Context())
	resp := HealthResponse{Healthy: len(providers) > 0, Providers: providers}
	for _, st := range providers {
		if !st.Healthy {
			resp.Healthy = false
			break
		}
	}
	common.ResponseSuccess(c, resp)
}

// ListProviders 已注册适配器列表
// @Summary 已注册的提供方与模型
// @Tags AI
// @Security BearerAuth
// @Produce json
// @Success 200 {object} common.APIResponse
// @Router /api/ai/providers [get]
func (h *Handler) ListProviders(c *gin.Context) {
	providers := h.gateway.GetRegisteredProviders()
	common.ResponseSuccess(c, gin.H{"providers": providers, "total": len(providers)})
}
