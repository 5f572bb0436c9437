package fetcher

import (
	"context"

	"HealthCheckIn/internal/model"
	"HealthCheckIn/pkg/api"
)

// Submissions 拉取提交列表，本身无缓存；统计每次都从全量列表重算
type Submissions struct {
	client api.Client
	group  *Group
}

func NewSubmissions(client api.Client, group *Group) *Submissions {
	return &Submissions{client: client, group: group}
}

func (f *Submissions) Fetch(ctx context.Context) ([]model.Submission, error) {
	return do(ctx, f.group, DatasetSubmissions, DatasetSubmissions, func(ctx context.Context) ([]model.Submission, error) {
		return f.client.FetchSubmissions(ctx)
	})
}

// Points 拉取积分总数，无缓存
type Points struct {
	client api.Client
	group  *Group
}

func NewPoints(client api.Client, group *Group) *Points {
	return &Points{client: client, group: group}
}

// Fetch 返回值不小于 0
func (f *Points) Fetch(ctx context.Context) (int, error) {
	return do(ctx, f.group, DatasetPoints, DatasetPoints, func(ctx context.Context) (int, error) {
		total, err := f.client.FetchPointsTotal(ctx)
		if err != nil {
			return 0, err
		}
		return max(total, 0), nil
	})
}

// Schema 按打卡类型拉取问题定义；缓存由调用方按类型维护
type Schema struct {
	client api.Client
	group  *Group
}

func NewSchema(client api.Client, group *Group) *Schema {
	return &Schema{client: client, group: group}
}

func (f *Schema) Fetch(ctx context.Context, t model.CheckInType) ([]model.QuestionSchema, error) {
	return do(ctx, f.group, DatasetSchema, DatasetSchema+":"+string(t), func(ctx context.Context) ([]model.QuestionSchema, error) {
		return f.client.FetchQuestionSchema(ctx, t)
	})
}
