package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"HealthCheckIn/internal/service"
	"HealthCheckIn/pkg/response"
)

// SubmitRequest 打卡提交请求体
type SubmitRequest struct {
	Answers map[string]any `json:"answers"`
}

// GetQuestions 某类打卡的问题定义
// GET /v1/check-ins/:type/questions
func (h *Handler) GetQuestions(ctx context.Context, c *app.RequestContext) {
	t, err := service.ParseType(c.Param("type"))
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	questions, err := h.checkIns.Questions(ctx, t)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, questions)
}

// SubmitCheckIn 提交答案；成功后仪表盘会收到"状态已变化"通知
// POST /v1/check-ins/:type
func (h *Handler) SubmitCheckIn(ctx context.Context, c *app.RequestContext) {
	t, err := service.ParseType(c.Param("type"))
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	var req SubmitRequest
	if err := c.BindJSON(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	sub, err := h.checkIns.Submit(ctx, t, req.Answers)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, sub)
}
