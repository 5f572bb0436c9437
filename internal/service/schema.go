package service

import (
	"context"
	"sync"
	"time"

	"HealthCheckIn/internal/cache"
	"HealthCheckIn/internal/fetcher"
	"HealthCheckIn/internal/model"
	"HealthCheckIn/pkg/metrics"
)

// SchemaCache 每种打卡类型一份问题定义缓存
type SchemaCache struct {
	fetcher *fetcher.Schema
	ttl     time.Duration
	clock   cache.Clock

	mu     sync.Mutex
	caches map[model.CheckInType]*cache.ExpiringCache[[]model.QuestionSchema]
}

func NewSchemaCache(f *fetcher.Schema, ttl time.Duration, clock cache.Clock) *SchemaCache {
	return &SchemaCache{
		fetcher: f,
		ttl:     ttl,
		clock:   clock,
		caches:  make(map[model.CheckInType]*cache.ExpiringCache[[]model.QuestionSchema]),
	}
}

func (s *SchemaCache) entry(t model.CheckInType) *cache.ExpiringCache[[]model.QuestionSchema] {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.caches[t]
	if !ok {
		c = cache.NewExpiring[[]model.QuestionSchema](s.ttl, s.clock)
		s.caches[t] = c
	}
	return c
}

// Get 命中缓存直接返回，否则拉取并写入；同类型并发请求由 fetcher 合并
// 失败不写缓存
func (s *SchemaCache) Get(ctx context.Context, t model.CheckInType) ([]model.QuestionSchema, error) {
	c := s.entry(t)
	schema, ok := c.Get()
	metrics.Get().RecordCacheLookup(ctx, fetcher.DatasetSchema, ok)
	if ok {
		return schema, nil
	}

	schema, err := s.fetcher.Fetch(ctx, t)
	if err != nil {
		return nil, err
	}
	c.Put(schema)
	return schema, nil
}

// Invalidate 清除某类型的缓存
func (s *SchemaCache) Invalidate(t model.CheckInType) {
	s.entry(t).Invalidate()
}
