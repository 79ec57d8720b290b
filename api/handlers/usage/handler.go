// Package usage 提供用户用量统计接口。
package usage

import (
	"context"
	"errors"

	"aiwriter/api/handlers/common"
	"aiwriter/internal/ai/aierr"
	"aiwriter/internal/auth"
	usagepkg "aiwriter/internal/usage"

	"github.com/gin-gonic/gin"
)

// StatsProvider 用量统计能力
type StatsProvider interface {
	GetUserStats(ctx context.Context, userID string, period usagepkg.Period) (*usagepkg.Stats, error)
}

// Handler 用量 Handler
type Handler struct {
	stats         StatsProvider
	exposeDetails bool
}

// NewHandler 创建 Handler 实例
func NewHandler(stats StatsProvider, exposeDetails bool) *Handler {
	return &Handler{stats: stats, exposeDetails: exposeDetails}
}

// GetMyStats 当前用户用量统计
// @Summary 当前用户用量统计
// @Description period 取 day、month（默认）或 all，按 UTC 自然日/月起算
// @Tags Usage
// @Security BearerAuth
// @Produce json
// @Param period query string false "统计周期"
// @Success 200 {object} common.APIResponse
// @Failure 400 {object} aierr.ErrorResponse
// @Router /api/ai/usage/stats [get]
func (h *Handler) GetMyStats(c *gin.Context) {
	h.respondStats(c, c.GetString(auth.UserIDKey))
}

// GetUserStats 管理员查询指定用户用量
// @Summary 指定用户用量统计
// @Tags Admin
// @Security BearerAuth
// @Produce json
// @Param userId path string true "用户ID"
// @Param period query string false "统计周期"
// @Success 200 {object} common.APIResponse
// @Router /api/admin/usage/{userId} [get]
func (h *Handler) GetUserStats(c *gin.Context) {
	h.respondStats(c, c.Param("userId"))
}

func (h *Handler) respondStats(c *gin.Context, userID string) {
	period, err := usagepkg.ParsePeriod(c.Query("period"))
	if err != nil {
		common.ResponseError(c, aierr.NewInvalidRequest(err.Error(),
			map[string]any{"allowed": []usagepkg.Period{usagepkg.PeriodDay, usagepkg.PeriodMonth, usagepkg.PeriodAll}}),
			h.exposeDetails)
		return
	}

	stats, err := h.stats.GetUserStats(c.Request.Context(), userID, period)
	if errors.Is(err, usagepkg.ErrInvalidPeriod) {
		err = aierr.NewInvalidRequest(err.Error(), nil)
	}
	if err != nil {
		common.ResponseError(c, err, h.exposeDetails)
		return
	}
	common.ResponseSuccess(c, stats)
}
