package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"HealthCheckIn/internal/cache"
	"HealthCheckIn/internal/event"
	"HealthCheckIn/internal/fetcher"
	"HealthCheckIn/internal/model"
	"HealthCheckIn/pkg/api"
	"HealthCheckIn/pkg/geo"
)

var (
	here     = model.Coordinate{Latitude: 52.52, Longitude: 13.40}
	fallback = model.Coordinate{Latitude: 37.7749, Longitude: -122.4194}
)

type harness struct {
	client *api.MockClient
	bus    *event.Bus
	cache  *cache.ExpiringCache[model.WeatherSnapshot]
	orch   *Orchestrator
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	provider := geo.NewStaticProvider()
	provider.Set(here)
	return newHarnessWithProvider(t, cfg, provider)
}

func newHarnessWithProvider(t *testing.T, cfg Config, provider geo.Provider) *harness {
	t.Helper()
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = time.Hour
	}
	if cfg.CelebrationDuration == 0 {
		cfg.CelebrationDuration = 30 * time.Millisecond
	}
	if cfg.PointsPopupDuration == 0 {
		cfg.PointsPopupDuration = 40 * time.Millisecond
	}

	client := api.NewMockClient()
	client.Weather = model.WeatherSnapshot{Condition: "clear", TemperatureC: 21}

	group := fetcher.NewGroup()
	weatherCache := cache.NewExpiring[model.WeatherSnapshot](time.Hour, nil)
	bus := event.NewBus()

	orch := New(
		fetcher.NewSubmissions(client, group),
		fetcher.NewPoints(client, group),
		fetcher.NewWeather(client, provider, weatherCache, group, fetcher.WeatherConfig{Fallback: fallback, GracePeriod: 10 * time.Millisecond}),
		bus,
		cfg,
	)
	t.Cleanup(orch.Close)

	return &harness{client: client, bus: bus, cache: weatherCache, orch: orch}
}

func TestLoadInitialPopulatesState(t *testing.T) {
	h := newHarness(t, Config{})
	h.client.Submissions = []model.Submission{{CheckInType: "Daily"}, {CheckInType: "Weekly"}, {CheckInType: "one_time"}}
	h.client.PointsTotal = 120

	h.orch.LoadInitial(context.Background())

	st := h.orch.State()
	assert.Equal(t, model.DashboardStats{TotalCheckIns: 2, DailyCount: 1, WeeklyCount: 1}, st.Stats)
	assert.Equal(t, 120, st.PointsTotal)
	require.NotNil(t, st.Weather)
	assert.Equal(t, here, st.Weather.Coordinate)
	assert.False(t, st.Loading)
	assert.True(t, st.InitialLoadComplete)
	assert.Empty(t, st.ErrorMessage)
}

func TestLoadInitialFetchOrder(t *testing.T) {
	h := newHarness(t, Config{})
	h.orch.LoadInitial(context.Background())

	var methods []string
	for _, c := range h.client.Calls() {
		methods = append(methods, c.Method)
	}
	assert.Equal(t, []string{"FetchSubmissions", "FetchPointsTotal", "FetchWeather"}, methods)
}

func TestLoadInitialFailuresAreIndependent(t *testing.T) {
	h := newHarness(t, Config{})
	h.client.PointsTotal = 50
	h.client.SetFail("FetchSubmissions", true)

	h.orch.LoadInitial(context.Background())

	st := h.orch.State()
	assert.Equal(t, model.DashboardStats{}, st.Stats)
	assert.Equal(t, 50, st.PointsTotal, "points fetch must still run")
	assert.NotNil(t, st.Weather, "weather fetch must still run")
	assert.True(t, st.InitialLoadComplete)
	assert.NotEmpty(t, st.ErrorMessage)
}

func TestLoadInitialAllFailuresFallBack(t *testing.T) {
	h := newHarness(t, Config{})
	for _, m := range []string{"FetchSubmissions", "FetchPointsTotal", "FetchWeather"} {
		h.client.SetFail(m, true)
	}

	h.orch.LoadInitial(context.Background())

	st := h.orch.State()
	assert.Equal(t, 0, st.PointsTotal)
	assert.Nil(t, st.Weather)
	assert.False(t, st.Loading)
	assert.True(t, st.InitialLoadComplete)
	assert.False(t, h.cache.IsValid())
}

func TestWeatherRetriesOnceWithFallbackCoordinate(t *testing.T) {
	h := newHarness(t, Config{})
	failAt := here
	h.client.FailWeatherAt = &failAt

	h.orch.LoadInitial(context.Background())

	st := h.orch.State()
	require.NotNil(t, st.Weather)
	assert.Equal(t, fallback, st.Weather.Coordinate)
	assert.Equal(t, 2, h.client.CallCount("FetchWeather"))
}

func TestWeatherSkipsRetryWhenAlreadyOnFallback(t *testing.T) {
	h := newHarnessWithProvider(t, Config{}, geo.NewStaticProvider())
	h.client.SetFail("FetchWeather", true)

	h.orch.LoadInitial(context.Background())

	calls := h.client.Calls()
	var weatherCalls []model.Coordinate
	for _, c := range calls {
		if c.Method == "FetchWeather" {
			weatherCalls = append(weatherCalls, c.Coordinate)
		}
	}
	assert.Equal(t, []model.Coordinate{fallback}, weatherCalls)
	assert.Nil(t, h.orch.State().Weather)
}

func TestWeatherIsCacheFirst(t *testing.T) {
	h := newHarness(t, Config{})
	h.orch.LoadInitial(context.Background())
	h.orch.LoadInitial(context.Background())

	assert.Equal(t, 1, h.client.CallCount("FetchWeather"))
	assert.Equal(t, 2, h.client.CallCount("FetchSubmissions"), "stats are always fetched fresh")
}

func TestForceRefreshBypassesWeatherTTL(t *testing.T) {
	h := newHarness(t, Config{})
	h.orch.LoadInitial(context.Background())
	h.orch.ForceRefresh(context.Background())

	assert.Equal(t, 2, h.client.CallCount("FetchWeather"))
}

func TestStateChangeIgnoredBeforeInitialLoad(t *testing.T) {
	h := newHarness(t, Config{})

	h.orch.OnExternalStateChanged(context.Background())

	assert.Empty(t, h.client.Calls(), "no fetch before initial load")
	assert.False(t, h.orch.State().CelebrationActive)
}

func TestStateChangeComputesDeltaAndCelebrates(t *testing.T) {
	h := newHarness(t, Config{})
	h.client.PointsTotal = 100
	h.orch.LoadInitial(context.Background())
	weatherCalls := h.client.CallCount("FetchWeather")

	h.client.SetPointsTotal(130)
	h.client.SetSubmissions([]model.Submission{{CheckInType: "daily"}})
	h.orch.OnExternalStateChanged(context.Background())

	st := h.orch.State()
	assert.Equal(t, 130, st.PointsTotal)
	assert.Equal(t, 30, st.EarnedDelta)
	assert.Equal(t, 1, st.Stats.DailyCount)
	assert.True(t, st.CelebrationActive)
	assert.True(t, st.PointsPopupActive)
	assert.Equal(t, weatherCalls, h.client.CallCount("FetchWeather"), "weather is not refreshed on state change")

	assert.Eventually(t, func() bool { return !h.orch.State().CelebrationActive }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return !h.orch.State().PointsPopupActive }, time.Second, 5*time.Millisecond)
}

func TestCelebrationClearsBeforePointsPopup(t *testing.T) {
	h := newHarness(t, Config{CelebrationDuration: 20 * time.Millisecond, PointsPopupDuration: 300 * time.Millisecond})
	h.orch.LoadInitial(context.Background())
	h.orch.OnExternalStateChanged(context.Background())

	assert.Eventually(t, func() bool { return !h.orch.State().CelebrationActive }, time.Second, 5*time.Millisecond)
	assert.True(t, h.orch.State().PointsPopupActive)
}

func TestEarnedDeltaNeverNegative(t *testing.T) {
	h := newHarness(t, Config{})
	h.client.PointsTotal = 100
	h.orch.LoadInitial(context.Background())

	h.client.SetPointsTotal(80)
	h.orch.OnExternalStateChanged(context.Background())

	st := h.orch.State()
	assert.Equal(t, 80, st.PointsTotal)
	assert.Equal(t, 0, st.EarnedDelta)
}

func TestStateChangeFailureKeepsPreviousValues(t *testing.T) {
	h := newHarness(t, Config{})
	h.client.PointsTotal = 100
	h.client.Submissions = []model.Submission{{CheckInType: "weekly"}}
	h.orch.LoadInitial(context.Background())

	h.client.SetFail("FetchPointsTotal", true)
	h.client.SetFail("FetchSubmissions", true)
	h.orch.OnExternalStateChanged(context.Background())

	st := h.orch.State()
	assert.Equal(t, 100, st.PointsTotal)
	assert.Equal(t, 1, st.Stats.WeeklyCount)
	assert.Equal(t, 0, st.EarnedDelta)
	assert.Empty(t, st.ErrorMessage, "background failures are never surfaced")
}

func TestBusEventDrivesStateChange(t *testing.T) {
	h := newHarness(t, Config{})
	h.client.PointsTotal = 10
	h.orch.Start(context.Background())
	h.orch.LoadInitial(context.Background())

	h.client.SetPointsTotal(25)
	require.NoError(t, h.bus.Publish(context.Background(), model.StateChangedEvent{Reason: "submission"}))

	assert.Eventually(t, func() bool { return h.orch.State().EarnedDelta == 15 }, time.Second, 5*time.Millisecond)
}

func TestSchedulerRefreshesExpiredWeather(t *testing.T) {
	h := newHarness(t, Config{RefreshInterval: 10 * time.Millisecond})
	h.orch.LoadInitial(context.Background())
	h.orch.Start(context.Background())

	before := h.client.CallCount("FetchWeather")
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, before, h.client.CallCount("FetchWeather"), "valid cache suppresses scheduled fetch")

	h.cache.Invalidate()
	assert.Eventually(t, func() bool { return h.client.CallCount("FetchWeather") > before }, time.Second, 5*time.Millisecond)
}

func TestScheduledWeatherFailureClearsExpiredSnapshot(t *testing.T) {
	h := newHarness(t, Config{RefreshInterval: 10 * time.Millisecond})
	h.orch.LoadInitial(context.Background())
	require.NotNil(t, h.orch.State().Weather)

	h.client.SetFail("FetchWeather", true)
	h.cache.Invalidate()
	h.orch.Start(context.Background())

	assert.Eventually(t, func() bool { return h.orch.State().Weather == nil }, time.Second, 5*time.Millisecond)
	assert.Empty(t, h.orch.State().ErrorMessage, "background refresh never sets the error message")
}

func TestCloseStopsSchedulerAndSubscriptions(t *testing.T) {
	h := newHarness(t, Config{RefreshInterval: 10 * time.Millisecond})
	h.orch.Start(context.Background())
	states, _ := h.orch.Subscribe()

	h.orch.Close()
	h.orch.Close()

	assert.Equal(t, 0, h.bus.Subscribers())
	for range states {
	}

	h.client.Reset()
	h.cache.Invalidate()
	time.Sleep(40 * time.Millisecond)
	assert.Zero(t, h.client.CallCount("FetchWeather"))
}

func TestSubscribeReceivesLatestState(t *testing.T) {
	h := newHarness(t, Config{})
	states, cancel := h.orch.Subscribe()
	defer cancel()

	initial := <-states
	assert.False(t, initial.InitialLoadComplete)

	h.client.PointsTotal = 7
	h.orch.LoadInitial(context.Background())

	// 缓冲为 1，中间状态被覆盖，只剩最后一次
	latest := <-states
	assert.True(t, latest.InitialLoadComplete)
	assert.Equal(t, 7, latest.PointsTotal)
	assert.False(t, latest.Loading)
}

func TestSubmissionsExposeLastFetchedList(t *testing.T) {
	h := newHarness(t, Config{})
	_, ok := h.orch.Submissions()
	assert.False(t, ok)

	h.client.Submissions = []model.Submission{{ID: "a", CheckInType: "daily"}}
	h.orch.LoadInitial(context.Background())

	subs, ok := h.orch.Submissions()
	require.True(t, ok)
	assert.Len(t, subs, 1)
}

func TestLoadingStaysTrueAcrossOverlappingLoads(t *testing.T) {
	h := newHarness(t, Config{})
	subsGate := make(chan struct{})
	pointsGate := make(chan struct{})
	h.client.SetGate("FetchSubmissions", subsGate)
	h.client.SetGate("FetchPointsTotal", pointsGate)

	arrived := func(method string, n int) func() bool {
		return func() bool { return h.client.Arrived(method) == n }
	}

	first := make(chan struct{})
	go func() {
		defer close(first)
		h.orch.LoadInitial(context.Background())
	}()

	require.Eventually(t, arrived("FetchSubmissions", 1), time.Second, time.Millisecond)
	assert.True(t, h.orch.State().Loading, "loading is set before the first fetch returns")
	assert.False(t, h.orch.State().InitialLoadComplete)

	subsGate <- struct{}{}
	require.Eventually(t, arrived("FetchPointsTotal", 1), time.Second, time.Millisecond)

	second := make(chan struct{})
	go func() {
		defer close(second)
		h.orch.LoadInitial(context.Background())
	}()
	require.Eventually(t, arrived("FetchSubmissions", 2), time.Second, time.Millisecond)

	pointsGate <- struct{}{}
	select {
	case <-first:
	case <-time.After(time.Second):
		t.Fatal("first load did not finish")
	}
	st := h.orch.State()
	assert.True(t, st.Loading, "second load is still running")
	assert.True(t, st.InitialLoadComplete)

	subsGate <- struct{}{}
	pointsGate <- struct{}{}
	select {
	case <-second:
	case <-time.After(time.Second):
		t.Fatal("second load did not finish")
	}
	assert.False(t, h.orch.State().Loading)
}
