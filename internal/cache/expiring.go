package cache

import (
	"sync"
	"time"
)

// Clock 可注入的时间源，测试中用来快进
type Clock func() time.Time

type entry[T any] struct {
	fetchedAt time.Time
	value     T
}

// ExpiringCache 单条目 TTL 缓存
// 条目有效当且仅当 now - fetchedAt < ttl；过期只是查询结果，不会自动清除
type ExpiringCache[T any] struct {
	now   Clock
	onPut func(value T, fetchedAt time.Time)

	mu    sync.RWMutex
	entry *entry[T]
	ttl   time.Duration
}

// NewExpiring 创建缓存，ttl 在构造后固定
func NewExpiring[T any](ttl time.Duration, clock Clock) *ExpiringCache[T] {
	if clock == nil {
		clock = time.Now
	}
	return &ExpiringCache[T]{ttl: ttl, now: clock}
}

// OnPut 注册写入回调（例如写穿到 Redis），只对 Put 生效
func (c *ExpiringCache[T]) OnPut(fn func(value T, fetchedAt time.Time)) {
	c.mu.Lock()
	c.onPut = fn
	c.mu.Unlock()
}

// Get 仅在条目存在且未过期时返回
func (c *ExpiringCache[T]) Get() (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var zero T
	if c.entry == nil || !c.fresh(c.entry.fetchedAt) {
		return zero, false
	}
	return c.entry.value, true
}

// Put 无条件覆盖当前条目，value 与时间戳作为整体写入
func (c *ExpiringCache[T]) Put(value T) {
	c.mu.Lock()
	fetchedAt := c.now()
	c.entry = &entry[T]{value: value, fetchedAt: fetchedAt}
	hook := c.onPut
	c.mu.Unlock()

	if hook != nil {
		hook(value, fetchedAt)
	}
}

// Seed 用已知的获取时间写入条目（用于从快照预热），不触发 OnPut
func (c *ExpiringCache[T]) Seed(value T, fetchedAt time.Time) {
	c.mu.Lock()
	c.entry = &entry[T]{value: value, fetchedAt: fetchedAt}
	c.mu.Unlock()
}

// Invalidate 无论新旧都清除条目
func (c *ExpiringCache[T]) Invalidate() {
	c.mu.Lock()
	c.entry = nil
	c.mu.Unlock()
}

// IsValid 等价于 Get 会命中
func (c *ExpiringCache[T]) IsValid() bool {
	_, ok := c.Get()
	return ok
}

// FetchedAt 返回当前条目的获取时间（不论是否过期）
func (c *ExpiringCache[T]) FetchedAt() (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.entry == nil {
		return time.Time{}, false
	}
	return c.entry.fetchedAt, true
}

func (c *ExpiringCache[T]) TTL() time.Duration {
	return c.ttl
}

func (c *ExpiringCache[T]) fresh(fetchedAt time.Time) bool {
	return c.now().Sub(fetchedAt) < c.ttl
}
