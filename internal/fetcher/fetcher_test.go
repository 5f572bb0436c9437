package fetcher

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"HealthCheckIn/internal/cache"
	"HealthCheckIn/internal/model"
	"HealthCheckIn/pkg/api"
	"HealthCheckIn/pkg/errors"
	"HealthCheckIn/pkg/geo"
)

var fallback = model.Coordinate{Latitude: 37.7749, Longitude: -122.4194}

func newWeather(client api.Client, provider geo.Provider, grace time.Duration) (*Weather, *cache.ExpiringCache[model.WeatherSnapshot]) {
	c := cache.NewExpiring[model.WeatherSnapshot](time.Hour, nil)
	return NewWeather(client, provider, c, NewGroup(), WeatherConfig{Fallback: fallback, GracePeriod: grace}), c
}

func TestPointsClampsNegative(t *testing.T) {
	m := api.NewMockClient()
	m.PointsTotal = -5

	total, err := NewPoints(m, NewGroup()).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestPointsReportsError(t *testing.T) {
	m := api.NewMockClient()
	m.SetFail("FetchPointsTotal", true)

	_, err := NewPoints(m, NewGroup()).Fetch(context.Background())
	assert.ErrorIs(t, err, errors.ErrTransport)
}

func TestSubmissionsFetch(t *testing.T) {
	m := api.NewMockClient()
	m.Submissions = []model.Submission{{ID: "1", CheckInType: "daily"}}

	subs, err := NewSubmissions(m, NewGroup()).Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestWeatherPopulatesCacheOnSuccess(t *testing.T) {
	m := api.NewMockClient()
	m.Weather = model.WeatherSnapshot{Condition: "clear"}
	p := geo.NewStaticProvider()
	here := model.Coordinate{Latitude: 48.85, Longitude: 2.35}
	p.Set(here)

	f, c := newWeather(m, p, time.Second)
	w, usedFallback, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.False(t, usedFallback)
	assert.Equal(t, here, w.Coordinate)

	cached, ok := c.Get()
	require.True(t, ok)
	assert.Equal(t, "clear", cached.Condition)
}

func TestWeatherFailureLeavesCacheUntouched(t *testing.T) {
	m := api.NewMockClient()
	m.SetFail("FetchWeather", true)

	f, c := newWeather(m, nil, 0)
	_, usedFallback, err := f.Fetch(context.Background())
	assert.ErrorIs(t, err, errors.ErrTransport)
	assert.True(t, usedFallback, "no provider means the fallback coordinate")
	assert.False(t, c.IsValid())
}

func TestWeatherUsesFallbackAfterGracePeriod(t *testing.T) {
	m := api.NewMockClient()
	f, _ := newWeather(m, geo.NewStaticProvider(), 50*time.Millisecond)

	start := time.Now()
	w, usedFallback, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.True(t, usedFallback)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, fallback, w.Coordinate)
}

func TestWeatherPicksUpLateCoordinate(t *testing.T) {
	m := api.NewMockClient()
	p := geo.NewStaticProvider()
	late := model.Coordinate{Latitude: 1, Longitude: 2}
	time.AfterFunc(20*time.Millisecond, func() { p.Set(late) })

	f, _ := newWeather(m, p, 2*time.Second)
	w, _, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, late, w.Coordinate)
}

func TestWeatherGraceWaitHonorsContext(t *testing.T) {
	f, _ := newWeather(api.NewMockClient(), geo.NewStaticProvider(), time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err := f.Fetch(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type slowClient struct {
	*api.MockClient
	calls   atomic.Int32
	release chan struct{}
}

func (s *slowClient) FetchPointsTotal(ctx context.Context) (int, error) {
	s.calls.Add(1)
	<-s.release
	return 42, nil
}

func TestConcurrentFetchesShareOneCall(t *testing.T) {
	s := &slowClient{MockClient: api.NewMockClient(), release: make(chan struct{})}
	f := NewPoints(s, NewGroup())

	var wg sync.WaitGroup
	results := make([]int, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = f.Fetch(context.Background())
		}(i)
	}

	assert.Eventually(t, func() bool { return s.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(s.release)
	wg.Wait()

	assert.Equal(t, int32(1), s.calls.Load())
	for _, r := range results {
		assert.Equal(t, 42, r)
	}
}

type blockingClient struct {
	*api.MockClient
	calls   atomic.Int32
	release chan struct{}
}

func (b *blockingClient) FetchPointsTotal(ctx context.Context) (int, error) {
	b.calls.Add(1)
	select {
	case <-b.release:
		return 42, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func TestSharedFetchSurvivesFirstCallerCancel(t *testing.T) {
	b := &blockingClient{MockClient: api.NewMockClient(), release: make(chan struct{})}
	f := NewPoints(b, NewGroup())

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := f.Fetch(firstCtx)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return b.calls.Load() == 1 }, time.Second, time.Millisecond)

	type result struct {
		total int
		err   error
	}
	second := make(chan result, 1)
	go func() {
		total, err := f.Fetch(context.Background())
		second <- result{total, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller still waiting")
	}

	close(b.release)
	select {
	case r := <-second:
		require.NoError(t, r.err)
		assert.Equal(t, 42, r.total)
	case <-time.After(time.Second):
		t.Fatal("shared call did not complete")
	}
	assert.Equal(t, int32(1), b.calls.Load())
}

func TestSchemaFetchPerType(t *testing.T) {
	m := api.NewMockClient()
	m.Schemas[model.CheckInTypeMonthly] = []model.QuestionSchema{{ID: 3, Key: "weight"}}
	f := NewSchema(m, NewGroup())

	got, err := f.Fetch(context.Background(), model.CheckInTypeMonthly)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "weight", got[0].Key)

	got, err = f.Fetch(context.Background(), model.CheckInTypeDaily)
	require.NoError(t, err)
	assert.Empty(t, got)

	calls := m.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, model.CheckInTypeDaily, calls[1].CheckInType)
}
