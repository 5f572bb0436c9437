package router

import (
	"github.com/cloudwego/hertz/pkg/route"

	"HealthCheckIn/internal/handler"
	"HealthCheckIn/internal/middleware"
)

// Register 注册全部路由；server.Hertz 传入其内嵌的 Engine
func Register(r *route.Engine, h *handler.Handler) {
	r.Use(middleware.RecoverMiddleware())
	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.OpenTelemetryMiddleware())

	r.GET("/healthz", h.Healthz)

	v1 := r.Group("/v1")

	// 仪表盘
	dashboard := v1.Group("/dashboard")
	{
		dashboard.GET("", h.GetDashboard)
		dashboard.POST("/refresh", middleware.RefreshRateLimitMiddleware(), h.RefreshDashboard)
	}

	// 历史记录
	history := v1.Group("/history")
	{
		history.GET("", h.ListHistory)
		history.GET("/:id", h.GetHistoryEntry)
	}

	// 打卡
	checkIns := v1.Group("/check-ins")
	{
		checkIns.GET("/:type/questions", h.GetQuestions)
		checkIns.POST("/:type", middleware.SubmitRateLimitMiddleware(), h.SubmitCheckIn)
	}
}
