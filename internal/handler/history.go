package handler

import (
	"context"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"

	"HealthCheckIn/internal/model"
	"HealthCheckIn/pkg/errors"
	"HealthCheckIn/pkg/response"
)

// ListHistory 全部历史记录，按提交时间倒序
// GET /v1/history
func (h *Handler) ListHistory(ctx context.Context, c *app.RequestContext) {
	entries, err := h.history.List(ctx)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.SuccessWithMeta(ctx, c, entries, map[string]interface{}{
		"total": len(entries),
	})
}

// GetHistoryEntry 单条提交的对账视图
// GET /v1/history/:id
func (h *Handler) GetHistoryEntry(ctx context.Context, c *app.RequestContext) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		response.Error(ctx, c, errors.InvalidRequest)
		return
	}

	entry, err := h.history.Entry(ctx, model.SubmissionID(id))
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, entry)
}
