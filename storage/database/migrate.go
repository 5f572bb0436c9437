package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"HealthCheckIn/internal/model"
	"HealthCheckIn/pkg/logger"
)

// Migrate 创建提交归档表
func Migrate() error {
	db := DB()
	if db == nil {
		return gorm.ErrInvalidDB
	}

	logger.Logger.Info("Starting database migration...")

	if err := db.AutoMigrate(&model.SubmissionRecord{}); err != nil {
		logger.Logger.Error("Database migration failed", zap.Error(err))
		return err
	}

	logger.Logger.Info("Database migration completed successfully")
	return nil
}
