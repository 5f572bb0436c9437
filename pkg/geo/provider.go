package geo

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"HealthCheckIn/config"
	"HealthCheckIn/internal/model"
	"HealthCheckIn/pkg/logger"
)

// Provider 设备定位
type Provider interface {
	// RequestPermission 请求定位权限，不阻塞等待坐标
	RequestPermission(ctx context.Context) error
	// CurrentCoordinates 返回当前坐标，ok=false 表示尚未可用
	CurrentCoordinates() (model.Coordinate, bool)
}

// StaticProvider 由配置或上层推送坐标的 Provider
// agent 运行在服务端，坐标来自 GEO_LATITUDE/GEO_LONGITUDE 或客户端上报
type StaticProvider struct {
	mu        sync.RWMutex
	coord     model.Coordinate
	available bool
	requested bool
}

func NewStaticProvider() *StaticProvider {
	return &StaticProvider{}
}

// NewFromConfig 读取配置中的设备坐标，未配置时坐标不可用
func NewFromConfig() (*StaticProvider, error) {
	p := NewStaticProvider()
	lat, lon, ok, err := config.Cfg.DeviceCoordinate()
	if err != nil {
		return nil, err
	}
	if ok {
		p.Set(model.Coordinate{Latitude: lat, Longitude: lon})
	}
	return p, nil
}

func (p *StaticProvider) RequestPermission(_ context.Context) error {
	p.mu.Lock()
	p.requested = true
	available := p.available
	p.mu.Unlock()

	if !available {
		logger.Logger.Debug("Location permission requested, coordinates not yet available")
	}
	return nil
}

func (p *StaticProvider) CurrentCoordinates() (model.Coordinate, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.coord, p.available
}

// Set 更新坐标（例如客户端上报）
func (p *StaticProvider) Set(coord model.Coordinate) {
	p.mu.Lock()
	p.coord = coord
	p.available = true
	p.mu.Unlock()

	logger.Logger.Debug("Device coordinates updated",
		zap.Float64("latitude", coord.Latitude),
		zap.Float64("longitude", coord.Longitude),
	)
}

// Permitted 是否已请求过权限
func (p *StaticProvider) Permitted() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.requested
}
