package api

import (
	"context"

	"HealthCheckIn/internal/model"
)

// Client 远端打卡 API
// 所有方法失败时返回 *errors.TransportError，调用方统一视为"数据集不可用"
type Client interface {
	// FetchSubmissions 拉取当前用户的全部提交记录
	FetchSubmissions(ctx context.Context) ([]model.Submission, error)

	// FetchPointsTotal 拉取积分总数
	FetchPointsTotal(ctx context.Context) (int, error)

	// FetchWeather 按坐标拉取天气
	FetchWeather(ctx context.Context, coord model.Coordinate) (model.WeatherSnapshot, error)

	// FetchQuestionSchema 拉取某类打卡的问题定义，按远端顺序返回
	FetchQuestionSchema(ctx context.Context, checkInType model.CheckInType) ([]model.QuestionSchema, error)

	// SubmitAnswers 提交答案，返回远端生成的提交记录
	SubmitAnswers(ctx context.Context, checkInType model.CheckInType, answers map[string]any) (model.Submission, error)
}
