package fetcher

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"HealthCheckIn/pkg/metrics"
)

// 数据集名称，同时作为 singleflight key、指标标签和 Redis 快照名
const (
	DatasetSubmissions = "submissions"
	DatasetPoints      = "points"
	DatasetWeather     = "weather"
	DatasetSchema      = "schema"
)

// 共享调用的超时上限，不跟随任何单个调用方的取消
const sharedCallTimeout = 30 * time.Second

var tracer = otel.Tracer("healthcheckin/fetcher")

// Group 同一 key 的并发远端调用只发出一次，其余调用方共享结果
// 多个 fetcher 可以共用一个 Group
type Group struct {
	sf      singleflight.Group
	timeout time.Duration
}

func NewGroup() *Group {
	return &Group{timeout: sharedCallTimeout}
}

// do 以 key 合并调用，并为真正发出的调用记录 span 和指标
// 调用方取消只影响自己的等待，已发出的共享调用继续执行
func do[T any](ctx context.Context, g *Group, dataset, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	ch := g.sf.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
		defer cancel()
		return observe(callCtx, dataset, fn)
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Shared {
			trace.SpanFromContext(ctx).AddEvent("singleflight.shared", trace.WithAttributes(attribute.String("dataset", dataset)))
		}
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

func observe[T any](ctx context.Context, dataset string, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, span := tracer.Start(ctx, "fetch."+dataset, trace.WithAttributes(attribute.String("dataset", dataset)))
	defer span.End()

	start := time.Now()
	v, err := fn(ctx)
	metrics.Get().RecordFetch(ctx, dataset, time.Since(start).Seconds(), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
	}
	return v, err
}
