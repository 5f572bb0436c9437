package dashboard

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"HealthCheckIn/internal/event"
	"HealthCheckIn/internal/fetcher"
	"HealthCheckIn/internal/model"
	"HealthCheckIn/internal/schedule"
	apperrors "HealthCheckIn/pkg/errors"
	"HealthCheckIn/pkg/logger"
	"HealthCheckIn/pkg/metrics"
)

type Config struct {
	RefreshInterval     time.Duration
	CelebrationDuration time.Duration
	PointsPopupDuration time.Duration
}

// Orchestrator 仪表盘同步核心
// 负责初始加载顺序（stats -> points -> weather）、强制刷新、天气定时刷新，
// 以及收到"状态已变化"事件后的积分/统计重算和庆祝提示
type Orchestrator struct {
	submissions *fetcher.Submissions
	points      *fetcher.Points
	weather     *fetcher.Weather
	bus         *event.Bus
	scheduler   *schedule.RefreshScheduler
	cfg         Config
	log         *zap.Logger
	now         func() time.Time

	mu          sync.Mutex
	state       State
	loading     int
	lastSubs    []model.Submission
	subsLoaded  bool
	timers      map[*time.Timer]struct{}
	watchers    map[int]chan State
	nextWatcher int
	eventSub    *event.Subscription
	closed      bool

	wg sync.WaitGroup
}

func New(
	submissions *fetcher.Submissions,
	points *fetcher.Points,
	weather *fetcher.Weather,
	bus *event.Bus,
	cfg Config,
) *Orchestrator {
	o := &Orchestrator{
		submissions: submissions,
		points:      points,
		weather:     weather,
		bus:         bus,
		cfg:         cfg,
		log:         logger.Named("dashboard"),
		now:         time.Now,
		timers:      make(map[*time.Timer]struct{}),
		watchers:    make(map[int]chan State),
	}
	o.scheduler = schedule.NewRefreshScheduler("weather", cfg.RefreshInterval, weather.IsValid, o.refreshWeatherInBackground)
	return o
}

// Start 订阅状态变化事件并启动天气定时刷新
// 初始加载由调用方显式执行 LoadInitial
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	if o.closed || o.eventSub != nil {
		o.mu.Unlock()
		return
	}
	var sub *event.Subscription
	if o.bus != nil {
		sub = o.bus.Subscribe(1)
		o.eventSub = sub
	}
	o.mu.Unlock()

	if sub != nil {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			for range sub.C {
				o.OnExternalStateChanged(context.WithoutCancel(ctx))
			}
		}()
	}

	o.scheduler.Start(ctx)
}

// Close 停止定时器和事件订阅，关闭所有状态订阅；可重复调用
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	sub := o.eventSub
	o.eventSub = nil
	for t := range o.timers {
		t.Stop()
	}
	o.timers = nil
	for id, ch := range o.watchers {
		close(ch)
		delete(o.watchers, id)
	}
	o.mu.Unlock()

	o.scheduler.Stop()
	if sub != nil {
		sub.Unsubscribe()
	}
	o.wg.Wait()

	o.log.Info("Dashboard orchestrator closed")
}

// LoadInitial 依次加载 stats、points、weather
// 每个数据集独立降级，一个失败不影响其余两个；只有这里会设置 ErrorMessage
func (o *Orchestrator) LoadInitial(ctx context.Context) {
	o.beginLoading()

	var failed []error

	stats, err := o.fetchStats(ctx)
	if err != nil {
		failed = append(failed, err)
		o.fallback(ctx, fetcher.DatasetSubmissions, err)
	}
	o.update(func(s *State) { s.Stats = stats })

	total, err := o.points.Fetch(ctx)
	if err != nil {
		failed = append(failed, err)
		o.fallback(ctx, fetcher.DatasetPoints, err)
		total = 0
	}
	o.update(func(s *State) { s.PointsTotal = total })

	weather := o.loadWeather(ctx)
	if weather == nil {
		failed = append(failed, apperrors.DatasetUnavailable)
	}
	o.update(func(s *State) { s.Weather = weather })

	o.endLoading(errors.Join(failed...))
}

// ForceRefresh 先让天气缓存失效，再完整加载一次
func (o *Orchestrator) ForceRefresh(ctx context.Context) {
	o.weather.Invalidate()
	o.LoadInitial(ctx)
}

// OnExternalStateChanged 用户完成了改变状态的操作
// 初始加载完成前直接忽略；之后刷新积分和统计（不含天气），并触发两个定时熄灭的提示
func (o *Orchestrator) OnExternalStateChanged(ctx context.Context) {
	o.mu.Lock()
	if !o.state.InitialLoadComplete || o.closed {
		o.mu.Unlock()
		o.log.Debug("Ignoring state change before initial load")
		return
	}
	previous := o.state.PointsTotal
	prevStats := o.state.Stats
	o.mu.Unlock()

	// 后台路径：失败时保留原值，只记日志
	total, err := o.points.Fetch(ctx)
	if err != nil {
		o.log.Warn("Points refresh after state change failed", zap.Error(err))
		total = previous
	}

	stats, err := o.fetchStats(ctx)
	if err != nil {
		o.log.Warn("Stats refresh after state change failed", zap.Error(err))
		stats = prevStats
	}

	earned := max(0, total-previous)

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.state.PointsTotal = total
	o.state.Stats = stats
	o.state.EarnedDelta = earned
	o.state.CelebrationActive = true
	o.state.PointsPopupActive = true
	o.state.UpdatedAt = o.now()
	o.startTimerLocked(o.cfg.CelebrationDuration, func(s *State) { s.CelebrationActive = false })
	o.startTimerLocked(o.cfg.PointsPopupDuration, func(s *State) { s.PointsPopupActive = false })
	o.publishLocked()
	o.mu.Unlock()

	metrics.Get().RecordCelebration(ctx, earned)
	o.log.Info("State change applied",
		zap.Int("previous_points", previous),
		zap.Int("points", total),
		zap.Int("earned", earned),
	)
}

// State 当前状态副本
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.clone()
}

// Subscribe 订阅状态变化；channel 缓冲 1，慢消费者只会看到最新状态
func (o *Orchestrator) Subscribe() (<-chan State, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ch := make(chan State, 1)
	if o.closed {
		close(ch)
		return ch, func() {}
	}

	id := o.nextWatcher
	o.nextWatcher++
	o.watchers[id] = ch
	ch <- o.state.clone()

	return ch, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if c, ok := o.watchers[id]; ok {
			delete(o.watchers, id)
			close(c)
		}
	}
}

// Submissions 最近一次成功拉取的提交列表
func (o *Orchestrator) Submissions() ([]model.Submission, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.subsLoaded {
		return nil, false
	}
	out := make([]model.Submission, len(o.lastSubs))
	copy(out, o.lastSubs)
	return out, true
}

func (o *Orchestrator) fetchStats(ctx context.Context) (model.DashboardStats, error) {
	subs, err := o.submissions.Fetch(ctx)
	if err != nil {
		return model.DashboardStats{}, err
	}

	o.mu.Lock()
	o.lastSubs = subs
	o.subsLoaded = true
	o.mu.Unlock()

	return ComputeStats(subs), nil
}

// loadWeather 缓存优先；主请求失败后用固定坐标重试一次，仍失败返回 nil
func (o *Orchestrator) loadWeather(ctx context.Context) *model.WeatherSnapshot {
	if w, ok := o.weather.Cached(ctx); ok {
		return &w
	}

	w, usedFallback, err := o.weather.Fetch(ctx)
	if err == nil {
		return &w
	}

	// 已经是回退坐标时不再重复请求
	if !usedFallback {
		o.log.Warn("Weather fetch failed, retrying with fallback coordinate", zap.Error(err))
		w, err = o.weather.FetchAt(ctx, o.weather.Fallback())
		if err == nil {
			return &w
		}
	}
	o.fallback(ctx, fetcher.DatasetWeather, err)
	return nil
}

// refreshWeatherInBackground 定时器回调，失败只记日志
// 与初始加载一致：缓存已过期且拉取失败时清空天气，不保留过期快照
func (o *Orchestrator) refreshWeatherInBackground(ctx context.Context) error {
	weather := o.loadWeather(ctx)
	o.update(func(s *State) { s.Weather = weather })
	if weather == nil {
		return apperrors.DatasetUnavailable
	}
	return nil
}

func (o *Orchestrator) fallback(ctx context.Context, dataset string, err error) {
	metrics.Get().RecordFallback(ctx, dataset)
	o.log.Warn("Dataset unavailable, using fallback",
		zap.String("dataset", dataset),
		zap.Error(err),
	)
}

func (o *Orchestrator) beginLoading() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.loading++
	o.state.Loading = true
	o.publishLocked()
}

func (o *Orchestrator) endLoading(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.loading--
	o.state.Loading = o.loading > 0
	o.state.InitialLoadComplete = true
	o.state.ErrorMessage = ""
	if err != nil {
		o.state.ErrorMessage = "Some dashboard data is temporarily unavailable"
	}
	o.state.UpdatedAt = o.now()
	o.publishLocked()
}

func (o *Orchestrator) update(fn func(s *State)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	fn(&o.state)
	o.state.UpdatedAt = o.now()
	o.publishLocked()
}

// startTimerLocked 一次性定时器，启动后不会被后续事件取消或重置
func (o *Orchestrator) startTimerLocked(d time.Duration, clear func(s *State)) {
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.closed {
			return
		}
		delete(o.timers, t)
		clear(&o.state)
		o.state.UpdatedAt = o.now()
		o.publishLocked()
	})
	o.timers[t] = struct{}{}
}

// publishLocked 非阻塞地把最新状态推给订阅者，丢弃未读的旧状态
func (o *Orchestrator) publishLocked() {
	if len(o.watchers) == 0 {
		return
	}
	snapshot := o.state.clone()
	for _, ch := range o.watchers {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snapshot:
		default:
		}
	}
}
