package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestPutThenGet(t *testing.T) {
	for _, ttl := range []time.Duration{time.Millisecond, time.Second, 30 * time.Minute, 24 * time.Hour} {
		clock := newFakeClock()
		c := NewExpiring[string](ttl, clock.Now)

		c.Put("sunny")
		got, ok := c.Get()
		require.True(t, ok, "ttl=%s", ttl)
		assert.Equal(t, "sunny", got)
		assert.True(t, c.IsValid())

		clock.Advance(ttl)
		_, ok = c.Get()
		assert.False(t, ok, "entry must be stale once ttl has elapsed (ttl=%s)", ttl)
		assert.False(t, c.IsValid())
	}
}

func TestGetJustBeforeExpiry(t *testing.T) {
	clock := newFakeClock()
	c := NewExpiring[int](time.Minute, clock.Now)
	c.Put(7)

	clock.Advance(time.Minute - time.Nanosecond)
	got, ok := c.Get()
	require.True(t, ok)
	assert.Equal(t, 7, got)
}

func TestStaleEntryIsNotCleared(t *testing.T) {
	clock := newFakeClock()
	c := NewExpiring[int](time.Minute, clock.Now)
	c.Put(1)
	clock.Advance(2 * time.Minute)

	_, ok := c.Get()
	require.False(t, ok)

	fetchedAt, present := c.FetchedAt()
	assert.True(t, present, "stale entry should remain until overwritten or invalidated")
	assert.Equal(t, clock.Now().Add(-2*time.Minute), fetchedAt)
}

func TestInvalidate(t *testing.T) {
	clock := newFakeClock()
	c := NewExpiring[string](time.Hour, clock.Now)

	c.Put("fresh")
	c.Invalidate()

	_, ok := c.Get()
	assert.False(t, ok)
	_, present := c.FetchedAt()
	assert.False(t, present)

	// 空缓存上重复调用也安全
	c.Invalidate()
	assert.False(t, c.IsValid())
}

func TestPutOverwritesAndResetsTimestamp(t *testing.T) {
	clock := newFakeClock()
	c := NewExpiring[string](time.Minute, clock.Now)

	c.Put("old")
	clock.Advance(50 * time.Second)
	c.Put("new")
	clock.Advance(50 * time.Second)

	got, ok := c.Get()
	require.True(t, ok)
	assert.Equal(t, "new", got)
}

func TestOnPutHook(t *testing.T) {
	clock := newFakeClock()
	c := NewExpiring[string](time.Minute, clock.Now)

	var gotValue string
	var gotAt time.Time
	c.OnPut(func(v string, at time.Time) {
		gotValue, gotAt = v, at
	})

	c.Put("cloudy")
	assert.Equal(t, "cloudy", gotValue)
	assert.Equal(t, clock.Now(), gotAt)

	gotValue = ""
	c.Seed("seeded", clock.Now())
	assert.Empty(t, gotValue, "Seed must not trigger the write-through hook")
}

func TestSeedWithOldTimestamp(t *testing.T) {
	clock := newFakeClock()
	c := NewExpiring[string](time.Minute, clock.Now)

	c.Seed("from-mirror", clock.Now().Add(-30*time.Second))
	assert.True(t, c.IsValid())

	clock.Advance(30 * time.Second)
	assert.False(t, c.IsValid())
}

func TestConcurrentPutGetNeverTears(t *testing.T) {
	type pair struct{ a, b int }
	c := NewExpiring[pair](time.Hour, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				c.Put(pair{a: i*1000 + j, b: i*1000 + j})
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				if v, ok := c.Get(); ok && v.a != v.b {
					t.Errorf("torn entry: %+v", v)
					return
				}
			}
		}()
	}
	wg.Wait()
}
