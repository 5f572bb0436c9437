package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"HealthCheckIn/pkg/logger"
)

// 快照存储：{prefix}:snapshot:{dataset}
// TTL: 与内存缓存一致，过期后 Redis 自动清除
const snapshotPrefix = "snapshot"

const mirrorTimeout = 2 * time.Second

// Mirror 派生数据的持久化快照，用于进程重启后预热 ExpiringCache
type Mirror interface {
	Load(ctx context.Context, dataset string, dst any) (fetchedAt time.Time, ok bool, err error)
	Save(ctx context.Context, dataset string, value any, fetchedAt time.Time, ttl time.Duration) error
}

type snapshot struct {
	FetchedAt time.Time       `json:"fetched_at"`
	Value     json.RawMessage `json:"value"`
}

func encodeSnapshot(value any, fetchedAt time.Time) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot value: %w", err)
	}
	return json.Marshal(snapshot{FetchedAt: fetchedAt, Value: raw})
}

func decodeSnapshot(data []byte, dst any) (time.Time, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return time.Time{}, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	if err := json.Unmarshal(snap.Value, dst); err != nil {
		return time.Time{}, fmt.Errorf("failed to unmarshal snapshot value: %w", err)
	}
	return snap.FetchedAt, nil
}

// RedisMirror 基于 Redis 的快照镜像，所有调用经过熔断器
type RedisMirror struct {
	client  goredis.Cmdable
	breaker *CircuitBreaker
	key     func(parts ...string) string
}

// NewRedisMirror key 通常传 storage/redis.Key
func NewRedisMirror(client goredis.Cmdable, key func(parts ...string) string) *RedisMirror {
	return &RedisMirror{
		client: client,
		// 连续失败 3 次后熔断，30 秒后尝试恢复
		breaker: NewCircuitBreaker("redis_snapshot_mirror", 3, 30*time.Second),
		key:     key,
	}
}

func (m *RedisMirror) Load(ctx context.Context, dataset string, dst any) (time.Time, bool, error) {
	var data []byte
	err := m.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		data, err = m.client.Get(ctx, m.key(snapshotPrefix, dataset)).Bytes()
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		return err
	})
	if err != nil {
		return time.Time{}, false, err
	}
	if data == nil {
		return time.Time{}, false, nil
	}

	fetchedAt, err := decodeSnapshot(data, dst)
	if err != nil {
		return time.Time{}, false, err
	}
	return fetchedAt, true, nil
}

func (m *RedisMirror) Save(ctx context.Context, dataset string, value any, fetchedAt time.Time, ttl time.Duration) error {
	data, err := encodeSnapshot(value, fetchedAt)
	if err != nil {
		return err
	}

	return m.breaker.Call(ctx, func(ctx context.Context) error {
		return m.client.Set(ctx, m.key(snapshotPrefix, dataset), data, ttl).Err()
	})
}

// AttachMirror 从镜像预热缓存，并让之后的 Put 写穿到镜像
// 镜像的任何失败只记日志，内存缓存照常工作
func AttachMirror[T any](ctx context.Context, c *ExpiringCache[T], m Mirror, dataset string) {
	if m == nil {
		return
	}
	log := logger.Named("cache").With(zap.String("dataset", dataset))

	loadCtx, cancel := context.WithTimeout(ctx, mirrorTimeout)
	var value T
	fetchedAt, ok, err := m.Load(loadCtx, dataset, &value)
	cancel()

	switch {
	case err != nil:
		log.Warn("Failed to load snapshot from mirror", zap.Error(err))
	case ok:
		c.Seed(value, fetchedAt)
		log.Info("Cache warmed from mirror",
			zap.Time("fetched_at", fetchedAt),
			zap.Bool("valid", c.IsValid()),
		)
	}

	c.OnPut(func(value T, fetchedAt time.Time) {
		saveCtx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := m.Save(saveCtx, dataset, value, fetchedAt, c.TTL()); err != nil {
			log.Warn("Failed to write snapshot to mirror", zap.Error(err))
		}
	})
}
