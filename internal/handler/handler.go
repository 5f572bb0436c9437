package handler

import (
	"context"

	"HealthCheckIn/internal/dashboard"
	"HealthCheckIn/internal/model"
)

// Dashboard 仪表盘同步核心对外暴露的操作
type Dashboard interface {
	State() dashboard.State
	ForceRefresh(ctx context.Context)
}

// History 历史记录查询
type History interface {
	Entry(ctx context.Context, id model.SubmissionID) (model.ReconciledHistoryEntry, error)
	List(ctx context.Context) ([]model.ReconciledHistoryEntry, error)
}

// CheckIns 打卡问题与提交
type CheckIns interface {
	Questions(ctx context.Context, t model.CheckInType) ([]model.QuestionSchema, error)
	Submit(ctx context.Context, t model.CheckInType, answers map[string]any) (model.Submission, error)
}

// Handler 持有 HTTP 接口依赖的服务
type Handler struct {
	dashboard Dashboard
	history   History
	checkIns  CheckIns
}

func New(d Dashboard, h History, c CheckIns) *Handler {
	return &Handler{dashboard: d, history: h, checkIns: c}
}
