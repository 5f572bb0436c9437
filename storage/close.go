package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"HealthCheckIn/pkg/logger"
	"HealthCheckIn/storage/database"
	"HealthCheckIn/storage/mq"
	"HealthCheckIn/storage/redis"
)

// Close 关闭所有存储连接，顺序：MQ -> Redis -> Database
// 未初始化的连接直接跳过
func Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	logger.Logger.Info("Closing storage connections...")

	if err := mq.Close(ctx); err != nil {
		logger.Logger.Error("Failed to close message queue", zap.Error(err))
	} else {
		logger.Logger.Info("Message queue closed successfully")
	}

	if err := redis.Close(ctx); err != nil {
		logger.Logger.Error("Failed to close Redis connection", zap.Error(err))
	} else {
		logger.Logger.Info("Redis connection closed successfully")
	}

	if err := database.Close(ctx); err != nil {
		logger.Logger.Error("Failed to close database connection", zap.Error(err))
	} else {
		logger.Logger.Info("Database connection closed successfully")
	}

	logger.Logger.Info("All storage connections closed")
}
