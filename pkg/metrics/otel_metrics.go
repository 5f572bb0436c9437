package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SyncMetrics 同步核心的 OpenTelemetry 指标集合
type SyncMetrics struct {
	FetchTotal       metric.Int64Counter
	FetchDuration    metric.Float64Histogram
	FallbackTotal    metric.Int64Counter
	CacheLookupTotal metric.Int64Counter
	CelebrationTotal metric.Int64Counter
	PointsEarned     metric.Int64Histogram
}

var (
	metrics     *SyncMetrics
	metricsOnce sync.Once
)

// Get 返回全局指标实例，首次调用时基于全局 MeterProvider 创建
// 未配置 provider 时 otel 返回 no-op 实现，测试中可以直接调用
func Get() *SyncMetrics {
	metricsOnce.Do(func() {
		m, err := newSyncMetrics(otel.Meter("healthcheckin"))
		if err != nil {
			otel.Handle(err)
			m, _ = newSyncMetrics(otel.GetMeterProvider().Meter("healthcheckin.fallback"))
		}
		metrics = m
	})
	return metrics
}

func newSyncMetrics(meter metric.Meter) (*SyncMetrics, error) {
	var (
		m   SyncMetrics
		err error
	)

	m.FetchTotal, err = meter.Int64Counter(
		"sync.fetch.total",
		metric.WithDescription("Total number of remote fetches per dataset"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, err
	}

	m.FetchDuration, err = meter.Float64Histogram(
		"sync.fetch.duration",
		metric.WithDescription("Remote fetch duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, err
	}

	m.FallbackTotal, err = meter.Int64Counter(
		"sync.fallback.total",
		metric.WithDescription("Number of datasets that fell back to a default value"),
		metric.WithUnit("{fallback}"),
	)
	if err != nil {
		return nil, err
	}

	m.CacheLookupTotal, err = meter.Int64Counter(
		"sync.cache.lookups",
		metric.WithDescription("Expiring cache lookups by result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	m.CelebrationTotal, err = meter.Int64Counter(
		"sync.celebrations.total",
		metric.WithDescription("Number of celebrations raised after state changes"),
		metric.WithUnit("{celebration}"),
	)
	if err != nil {
		return nil, err
	}

	m.PointsEarned, err = meter.Int64Histogram(
		"sync.points.earned",
		metric.WithDescription("Points earned per state change"),
		metric.WithUnit("{point}"),
	)
	if err != nil {
		return nil, err
	}

	return &m, nil
}

// RecordFetch 记录一次远端获取
func (m *SyncMetrics) RecordFetch(ctx context.Context, dataset string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("dataset", dataset),
		attribute.String("status", status),
	)
	m.FetchTotal.Add(ctx, 1, attrs)
	m.FetchDuration.Record(ctx, duration, attrs)
}

// RecordFallback 记录数据集降级为默认值
func (m *SyncMetrics) RecordFallback(ctx context.Context, dataset string) {
	m.FallbackTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("dataset", dataset)))
}

// RecordCacheLookup 记录缓存命中/未命中
func (m *SyncMetrics) RecordCacheLookup(ctx context.Context, dataset string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookupTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("dataset", dataset),
		attribute.String("result", result),
	))
}

// RecordCelebration 记录一次庆祝及获得的积分
func (m *SyncMetrics) RecordCelebration(ctx context.Context, earned int) {
	m.CelebrationTotal.Add(ctx, 1)
	m.PointsEarned.Record(ctx, int64(earned))
}
