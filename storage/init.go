package storage

import (
	"fmt"

	"go.uber.org/zap"

	"HealthCheckIn/config"
	"HealthCheckIn/pkg/logger"
	"HealthCheckIn/storage/database"
	"HealthCheckIn/storage/mq"
	"HealthCheckIn/storage/redis"
)

// Init 按配置开关初始化可选的存储；全部关闭时 agent 只用内存运行
func Init() error {
	cfg := config.Cfg

	if cfg.DatabaseEnabled {
		if err := database.Init(); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}

	if cfg.RedisEnabled {
		if err := redis.Init(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}

	if cfg.RabbitMQEnabled {
		if err := mq.Init(); err != nil {
			return fmt.Errorf("rabbitmq: %w", err)
		}
	}

	logger.Logger.Info("Storage initialized",
		zap.Bool("database", cfg.DatabaseEnabled),
		zap.Bool("redis", cfg.RedisEnabled),
		zap.Bool("rabbitmq", cfg.RabbitMQEnabled),
	)
	return nil
}
