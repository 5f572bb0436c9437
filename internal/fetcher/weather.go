package fetcher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"HealthCheckIn/internal/cache"
	"HealthCheckIn/internal/model"
	"HealthCheckIn/pkg/api"
	"HealthCheckIn/pkg/geo"
	"HealthCheckIn/pkg/logger"
	"HealthCheckIn/pkg/metrics"
)

const locationPollInterval = 100 * time.Millisecond

// Weather 天气数据集，成功结果写入 ExpiringCache
// 失败时只返回错误，是否降级由调用方决定
type Weather struct {
	client   api.Client
	geo      geo.Provider
	cache    *cache.ExpiringCache[model.WeatherSnapshot]
	group    *Group
	fallback model.Coordinate
	grace    time.Duration
}

type WeatherConfig struct {
	Fallback    model.Coordinate
	GracePeriod time.Duration
}

func NewWeather(client api.Client, provider geo.Provider, c *cache.ExpiringCache[model.WeatherSnapshot], group *Group, cfg WeatherConfig) *Weather {
	return &Weather{
		client:   client,
		geo:      provider,
		cache:    c,
		group:    group,
		fallback: cfg.Fallback,
		grace:    cfg.GracePeriod,
	}
}

// Cached 读取缓存，未命中或过期返回 false
func (f *Weather) Cached(ctx context.Context) (model.WeatherSnapshot, bool) {
	w, ok := f.cache.Get()
	metrics.Get().RecordCacheLookup(ctx, DatasetWeather, ok)
	return w, ok
}

func (f *Weather) IsValid() bool {
	return f.cache.IsValid()
}

func (f *Weather) Invalidate() {
	f.cache.Invalidate()
}

// Fallback 定位不可用或主请求失败时使用的固定坐标
func (f *Weather) Fallback() model.Coordinate {
	return f.fallback
}

// Fetch 按设备坐标拉取天气；坐标尚不可用时最多等待宽限期，之后使用回退坐标
// usedFallback 表示本次请求已经落在回退坐标上
func (f *Weather) Fetch(ctx context.Context) (w model.WeatherSnapshot, usedFallback bool, err error) {
	coord, usedFallback, err := f.resolveCoordinate(ctx)
	if err != nil {
		return model.WeatherSnapshot{}, false, err
	}
	w, err = f.FetchAt(ctx, coord)
	return w, usedFallback, err
}

// FetchAt 按指定坐标拉取天气，成功后写入缓存
func (f *Weather) FetchAt(ctx context.Context, coord model.Coordinate) (model.WeatherSnapshot, error) {
	key := fmt.Sprintf("%s:%f,%f", DatasetWeather, coord.Latitude, coord.Longitude)
	return do(ctx, f.group, DatasetWeather, key, func(ctx context.Context) (model.WeatherSnapshot, error) {
		w, err := f.client.FetchWeather(ctx, coord)
		if err != nil {
			return model.WeatherSnapshot{}, err
		}
		f.cache.Put(w)
		return w, nil
	})
}

func (f *Weather) resolveCoordinate(ctx context.Context) (model.Coordinate, bool, error) {
	if f.geo == nil {
		return f.fallback, true, nil
	}
	if coord, ok := f.geo.CurrentCoordinates(); ok {
		return coord, false, nil
	}

	if err := f.geo.RequestPermission(ctx); err != nil {
		logger.Named("fetcher").Warn("Location permission request failed", zap.Error(err))
	}

	if f.grace > 0 {
		deadline := time.NewTimer(f.grace)
		defer deadline.Stop()
		ticker := time.NewTicker(min(locationPollInterval, f.grace))
		defer ticker.Stop()

	wait:
		for {
			select {
			case <-ctx.Done():
				return model.Coordinate{}, false, ctx.Err()
			case <-deadline.C:
				break wait
			case <-ticker.C:
				if coord, ok := f.geo.CurrentCoordinates(); ok {
					return coord, false, nil
				}
			}
		}
		// 截止时刻再检查一次
		if coord, ok := f.geo.CurrentCoordinates(); ok {
			return coord, false, nil
		}
	}

	logger.Named("fetcher").Info("Location unavailable after grace period, using fallback coordinate",
		zap.Duration("grace", f.grace),
		zap.Float64("latitude", f.fallback.Latitude),
		zap.Float64("longitude", f.fallback.Longitude),
	)
	return f.fallback, true, nil
}
