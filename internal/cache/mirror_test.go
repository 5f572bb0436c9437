package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryMirror struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]time.Duration
	loadErr error
}

func newMemoryMirror() *memoryMirror {
	return &memoryMirror{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memoryMirror) Load(_ context.Context, dataset string, dst any) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return time.Time{}, false, m.loadErr
	}
	raw, ok := m.data[dataset]
	if !ok {
		return time.Time{}, false, nil
	}
	at, err := decodeSnapshot(raw, dst)
	return at, err == nil, err
}

func (m *memoryMirror) Save(_ context.Context, dataset string, value any, fetchedAt time.Time, ttl time.Duration) error {
	raw, err := encodeSnapshot(value, fetchedAt)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[dataset] = raw
	m.ttls[dataset] = ttl
	m.mu.Unlock()
	return nil
}

type weather struct {
	Condition string  `json:"condition"`
	TempC     float64 `json:"temp_c"`
}

func TestSnapshotRoundTrip(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	raw, err := encodeSnapshot(weather{Condition: "rain", TempC: 11.5}, at)
	require.NoError(t, err)

	var got weather
	gotAt, err := decodeSnapshot(raw, &got)
	require.NoError(t, err)
	assert.True(t, at.Equal(gotAt))
	assert.Equal(t, weather{Condition: "rain", TempC: 11.5}, got)
}

func TestDecodeSnapshotRejectsGarbage(t *testing.T) {
	var got weather
	_, err := decodeSnapshot([]byte("not json"), &got)
	assert.Error(t, err)
}

func TestAttachMirrorWarmsAndWritesThrough(t *testing.T) {
	clock := newFakeClock()
	mirror := newMemoryMirror()
	require.NoError(t, mirror.Save(context.Background(), "weather", weather{Condition: "fog"}, clock.Now().Add(-time.Minute), time.Hour))

	c := NewExpiring[weather](10*time.Minute, clock.Now)
	AttachMirror(context.Background(), c, mirror, "weather")

	got, ok := c.Get()
	require.True(t, ok, "snapshot within ttl should warm the cache")
	assert.Equal(t, "fog", got.Condition)

	c.Put(weather{Condition: "clear", TempC: 20})

	var stored weather
	at, ok, err := mirror.Load(context.Background(), "weather", &stored)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "clear", stored.Condition)
	assert.True(t, clock.Now().Equal(at))
	assert.Equal(t, 10*time.Minute, mirror.ttls["weather"])
}

func TestAttachMirrorStaleSnapshotStaysInvalid(t *testing.T) {
	clock := newFakeClock()
	mirror := newMemoryMirror()
	require.NoError(t, mirror.Save(context.Background(), "weather", weather{Condition: "old"}, clock.Now().Add(-time.Hour), time.Hour))

	c := NewExpiring[weather](10*time.Minute, clock.Now)
	AttachMirror(context.Background(), c, mirror, "weather")

	assert.False(t, c.IsValid())
}

func TestAttachMirrorToleratesLoadFailure(t *testing.T) {
	mirror := newMemoryMirror()
	mirror.loadErr = errors.New("redis down")

	c := NewExpiring[weather](time.Minute, nil)
	AttachMirror(context.Background(), c, mirror, "weather")

	assert.False(t, c.IsValid())
	c.Put(weather{Condition: "sun"})
	assert.True(t, c.IsValid())
}

func TestAttachNilMirror(t *testing.T) {
	c := NewExpiring[weather](time.Minute, nil)
	AttachMirror[weather](context.Background(), c, nil, "weather")
	c.Put(weather{Condition: "sun"})
	assert.True(t, c.IsValid())
}
