package schedule

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"HealthCheckIn/pkg/logger"
)

// RefreshScheduler 固定间隔触发条件刷新：每次 tick 先问 isValid，只有缓存失效才刷新
// 状态机 Stopped -> Running -> Stopped，同一实例最多一个活动定时器
type RefreshScheduler struct {
	isValid func() bool
	refresh func(ctx context.Context) error

	name     string
	interval time.Duration
	timeout  time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	gen     uint64
	running bool
}

func NewRefreshScheduler(name string, interval time.Duration, isValid func() bool, refresh func(ctx context.Context) error) *RefreshScheduler {
	return &RefreshScheduler{
		name:     name,
		interval: interval,
		timeout:  2 * time.Minute,
		isValid:  isValid,
		refresh:  refresh,
	}
}

// Start 总是先停止之前的定时器再启动新的
func (s *RefreshScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.gen++
	s.running = true

	go s.loop(loopCtx, s.gen)

	logger.Logger.Info("Refresh scheduler started",
		zap.String("scheduler", s.name),
		zap.Duration("interval", s.interval),
	)
}

// Stop 取消之后的 tick；已经发出的刷新会继续执行到结束
func (s *RefreshScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopLocked() {
		logger.Logger.Info("Refresh scheduler stopped", zap.String("scheduler", s.name))
	}
}

func (s *RefreshScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *RefreshScheduler) stopLocked() bool {
	if !s.running {
		return false
	}
	s.cancel()
	s.cancel = nil
	s.running = false
	s.gen++
	return true
}

// current 判断本轮循环是否仍是活动的那一个
func (s *RefreshScheduler) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && s.gen == gen
}

func (s *RefreshScheduler) loop(ctx context.Context, gen uint64) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.current(gen) {
				return
			}
			s.tick(ctx)
		}
	}
}

func (s *RefreshScheduler) tick(ctx context.Context) {
	if s.isValid != nil && s.isValid() {
		logger.Logger.Debug("Cache still valid, skipping refresh", zap.String("scheduler", s.name))
		return
	}

	// 停止调度不取消已发出的刷新
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	if err := s.refresh(runCtx); err != nil {
		logger.Logger.Warn("Scheduled refresh failed",
			zap.String("scheduler", s.name),
			zap.Error(err),
		)
	}
}
