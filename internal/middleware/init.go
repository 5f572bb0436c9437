package middleware

import (
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"HealthCheckIn/pkg/logger"
)

// Init 初始化中间件依赖的指标；在 otel provider 安装之后调用
func Init() error {
	if err := InitMetrics(otel.Meter("hertz-server")); err != nil {
		logger.Logger.Error("Failed to initialize middleware metrics", zap.Error(err))
		return err
	}

	logger.Logger.Info("All middlewares initialized successfully")
	return nil
}
