package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"HealthCheckIn/pkg/response"
)

// GetDashboard 当前仪表盘状态快照
// GET /v1/dashboard
func (h *Handler) GetDashboard(ctx context.Context, c *app.RequestContext) {
	response.Success(ctx, c, h.dashboard.State())
}

// RefreshDashboard 绕过天气缓存重新加载，返回加载后的状态
// POST /v1/dashboard/refresh
func (h *Handler) RefreshDashboard(ctx context.Context, c *app.RequestContext) {
	h.dashboard.ForceRefresh(ctx)
	response.Success(ctx, c, h.dashboard.State())
}

// Healthz 存活探针
// GET /healthz
func (h *Handler) Healthz(ctx context.Context, c *app.RequestContext) {
	st := h.dashboard.State()
	response.Success(ctx, c, map[string]interface{}{
		"status":                "ok",
		"initial_load_complete": st.InitialLoadComplete,
	})
}
