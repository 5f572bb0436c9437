package service

import (
	"context"

	"go.uber.org/zap"

	"HealthCheckIn/internal/event"
	"HealthCheckIn/internal/model"
	"HealthCheckIn/pkg/api"
	"HealthCheckIn/pkg/errors"
	"HealthCheckIn/pkg/logger"
)

const reasonSubmission = "submission"

// CheckInService 提交答案并通知仪表盘
type CheckInService struct {
	client    api.Client
	schemas   *SchemaCache
	archive   Archive
	publisher event.Publisher
	log       *zap.Logger
}

// NewCheckInService archive 可以为 nil
func NewCheckInService(client api.Client, schemas *SchemaCache, archive Archive, publisher event.Publisher) *CheckInService {
	return &CheckInService{
		client:    client,
		schemas:   schemas,
		archive:   archive,
		publisher: publisher,
		log:       logger.Named("checkin"),
	}
}

// ParseType 严格解析路由中的打卡类型
func ParseType(raw string) (model.CheckInType, error) {
	for _, t := range model.CheckInTypes {
		if raw == string(t) {
			return t, nil
		}
	}
	return "", errors.CheckInTypeInvalid
}

// Questions 某类打卡的问题定义
func (s *CheckInService) Questions(ctx context.Context, t model.CheckInType) ([]model.QuestionSchema, error) {
	return s.schemas.Get(ctx, t)
}

// Submit 提交成功后归档并发布"状态已变化"；归档或发布失败只记日志
func (s *CheckInService) Submit(ctx context.Context, t model.CheckInType, answers map[string]any) (model.Submission, error) {
	if len(answers) == 0 {
		return model.Submission{}, errors.AnswersEmpty
	}

	sub, err := s.client.SubmitAnswers(ctx, t, answers)
	if err != nil {
		return model.Submission{}, err
	}

	if s.archive != nil {
		if err := s.archive.Save(ctx, sub); err != nil {
			s.log.Warn("Failed to archive submission", zap.String("submission_id", string(sub.ID)), zap.Error(err))
		}
	}

	if err := s.publisher.Publish(ctx, model.StateChangedEvent{Reason: reasonSubmission}); err != nil {
		s.log.Warn("Failed to publish state-changed event", zap.Error(err))
	}

	s.log.Info("Check-in submitted",
		zap.String("submission_id", string(sub.ID)),
		zap.String("checkin_type", string(t)),
		zap.Int("answers", len(answers)),
	)
	return sub, nil
}
