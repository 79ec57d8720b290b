// Package quota 提供用户配额查询与管理员配额管理接口。
package quota

import (
	"context"
	"errors"

	"aiwriter/api/handlers/common"
	"aiwriter/internal/ai/aierr"
	"aiwriter/internal/auth"
	quotapkg "aiwriter/internal/quota"

	"github.com/gin-gonic/gin"
)

// Manager 配额管理能力
type Manager interface {
	GetQuota(ctx context.Context, userID string) (*quotapkg.Status, error)
	UpdateQuotaLimits(ctx context.Context, userID string, limits quotapkg.Limits) (*quotapkg.Status, error)
	ResetQuota(ctx context.Context, userID string) (*quotapkg.Status, error)
	ApplyTier(ctx context.Context, userID, tier string) (*quotapkg.Status, error)
	Tiers() map[string]quotapkg.Tier
}

// Handler 配额 Handler
type Handler struct {
	manager       Manager
	exposeDetails bool
}

// NewHandler 创建 Handler 实例
func NewHandler(manager Manager, exposeDetails bool) *Handler {
	return &Handler{manager: manager, exposeDetails: exposeDetails}
}

// ApplyTierRequest 切换套餐请求
type ApplyTierRequest struct {
	Tier string `json:"tier" binding:"required"`
}

// GetMyQuota 查询当前用户配额
// @Summary 查询当前用户配额
// @Description 读取时会惰性重置已过期的日/月窗口，首次访问按默认套餐创建
// @Tags Quota
// @Security BearerAuth
// @Produce json
// @Success 200 {object} common.APIResponse
// @Router /api/ai/quota [get]
func (h *Handler) GetMyQuota(c *gin.Context) {
	status, err := h.manager.GetQuota(c.Request.Context(), c.GetString(auth.UserIDKey))
	if err != nil {
		common.ResponseError(c, err, h.exposeDetails)
		return
	}
	common.ResponseSuccess(c, status)
}

// GetUserQuota 管理员查询指定用户配额
// @Summary 查询指定用户配额
// @Tags Admin
// @Security BearerAuth
// @Produce json
// @Param userId path string true "用户ID"
// @Success 200 {object} common.APIResponse
// @Router /api/admin/quotas/{userId} [get]
func (h *Handler) GetUserQuota(c *gin.Context) {
	status, err := h.manager.GetQuota(c.Request.Context(), c.Param("userId"))
	if err != nil {
		common.ResponseError(c, err, h.exposeDetails)
		return
	}
	common.ResponseSuccess(c, status)
}

// UpdateLimits 覆盖用户限额
// @Summary 覆盖用户限额
// @Description 仅修改请求中给出的字段，计数不变
// @Tags Admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param userId path string true "用户ID"
// @Param request body quotapkg.Limits true "限额"
// @Success 200 {object} common.APIResponse
// @Failure 400 {object} aierr.ErrorResponse
// @Router /api/admin/quotas/{userId} [put]
func (h *Handler) UpdateLimits(c *gin.Context) {
	var limits quotapkg.Limits
	if err := c.ShouldBindJSON(&limits); err != nil {
		common.ResponseBadRequest(c, err)
		return
	}
	if limits.IsEmpty() {
		common.ResponseError(c, aierr.NewInvalidRequest("at least one limit is required", nil), h.exposeDetails)
		return
	}

	status, err := h.manager.UpdateQuotaLimits(c.Request.Context(), c.Param("userId"), limits)
	if err != nil {
		common.ResponseError(c, err, h.exposeDetails)
		return
	}
	common.ResponseSuccess(c, status)
}

// Reset 清零用户计数
// @Summary 重置用户配额
// @Tags Admin
// @Security BearerAuth
// @Produce json
// @Param userId path string true "用户ID"
// @Success 200 {object} common.APIResponse
// @Router /api/admin/quotas/{userId}/reset [post]
func (h *Handler) Reset(c *gin.Context) {
	status, err := h.manager.ResetQuota(c.Request.Context(), c.Param("userId"))
	if err != nil {
		common.ResponseError(c, err, h.exposeDetails)
		return
	}
	common.ResponseSuccess(c, status)
}

// ApplyTier 切换用户套餐
// @Summary 切换用户套餐
// @Tags Admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param userId path string true "用户ID"
// @Param request body ApplyTierRequest true "套餐"
// @Success 200 {object} common.APIResponse
// @Failure 400 {object} aierr.ErrorResponse
// @Router /api/admin/quotas/{userId}/tier [put]
func (h *Handler) ApplyTier(c *gin.Context) {
	var req ApplyTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, err)
		return
	}

	status, err := h.manager.ApplyTier(c.Request.Context(), c.Param("userId"), req.Tier)
	if errors.Is(err, quotapkg.ErrUnknownTier) {
		err = aierr.NewInvalidRequest(err.Error(), map[string]any{"tiers": quotapkg.TierNames(h.manager.Tiers())})
	}
	if err != nil {
		common.ResponseError(c, err, h.exposeDetails)
		return
	}
	common.ResponseSuccess(c, status)
}

// ListTiers 可用套餐
// @Summary 可用套餐列表
// @Tags Quota
// @Security BearerAuth
// @Produce json
// @Success 200 {object} common.APIResponse
// @Router /api/ai/quota/tiers [get]
func (h *Handler) ListTiers(c *gin.Context) {
	tiers := h.manager.Tiers()
	items := make([]quotapkg.Tier, 0, len(tiers))
	for _, name := range quotapkg.TierNames(tiers) {
		t := tiers[name]
		if t.Name == "" {
			t.Name = name
		}
		items = append(items, t)
	}
	common.ResponseSuccess(c, gin.H{"tiers": items, "total": len(items)})
}
