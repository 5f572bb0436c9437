package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"HealthCheckIn/pkg/errors"
	"HealthCheckIn/pkg/logger"
	"HealthCheckIn/pkg/response"
	"HealthCheckIn/storage/redis"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	// 限流键前缀
	KeyPrefix string
	// 时间窗口
	Window time.Duration
	// 超限后禁止访问的时长
	BlockDuration time.Duration
	// 时间窗口内最大请求数
	MaxRequests int
}

// RefreshRateLimitConfig 强制刷新会绕过天气缓存，需要限流
var RefreshRateLimitConfig = RateLimitConfig{
	KeyPrefix:     "rate:refresh",
	Window:        time.Minute,
	MaxRequests:   6,
	BlockDuration: 2 * time.Minute,
}

// SubmitRateLimitConfig 打卡提交限流
var SubmitRateLimitConfig = RateLimitConfig{
	KeyPrefix:     "rate:submit",
	Window:        time.Minute,
	MaxRequests:   10,
	BlockDuration: 5 * time.Minute,
}

// RateLimiter 基于 redis zset 的滑动窗口限流器
type RateLimiter struct {
	client redislib.Cmdable
	now    func() time.Time
	config RateLimitConfig
}

func NewRateLimiter(client redislib.Cmdable, config RateLimitConfig) *RateLimiter {
	return &RateLimiter{client: client, config: config, now: time.Now}
}

func (rl *RateLimiter) key(c *app.RequestContext) string {
	return redis.Key(rl.config.KeyPrefix, "ip:"+c.ClientIP())
}

func (rl *RateLimiter) blockKey(c *app.RequestContext) string {
	return redis.Key(rl.config.KeyPrefix, "block", "ip:"+c.ClientIP())
}

// Allow 检查是否允许请求，返回窗口内的请求数
func (rl *RateLimiter) Allow(ctx context.Context, c *app.RequestContext) (bool, int, error) {
	key := rl.key(c)
	now := rl.now()
	windowStart := now.Add(-rl.config.Window)

	pipe := rl.client.Pipeline()
	// 先移除窗口外的记录，再记录本次请求
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
	pipe.ZAdd(ctx, key, redislib.Z{
		Score:  float64(now.UnixNano()),
		Member: now.UnixNano(),
	})
	zcardCmd := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, rl.config.Window+10*time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("failed to execute pipeline: %w", err)
	}

	count := int(zcardCmd.Val())
	return count <= rl.config.MaxRequests, count, nil
}

func (rl *RateLimiter) Block(ctx context.Context, c *app.RequestContext) error {
	return rl.client.Set(ctx, rl.blockKey(c), "1", rl.config.BlockDuration).Err()
}

func (rl *RateLimiter) IsBlocked(ctx context.Context, c *app.RequestContext) (bool, error) {
	result, err := rl.client.Exists(ctx, rl.blockKey(c)).Result()
	return result > 0, err
}

// RateLimitMiddleware 未启用 redis 时直接放行；redis 出错也放行，只记日志
func RateLimitMiddleware(config RateLimitConfig) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		client := redis.Client()
		if client == nil {
			c.Next(ctx)
			return
		}
		limiter := NewRateLimiter(client, config)

		blocked, err := limiter.IsBlocked(ctx, c)
		if err != nil {
			logger.Logger.Warn("Failed to check block status", zap.Error(err))
			c.Next(ctx)
			return
		}
		if blocked {
			response.Error(ctx, c, errors.TooManyRequests)
			c.Abort()
			return
		}

		allowed, count, err := limiter.Allow(ctx, c)
		if err != nil {
			logger.Logger.Warn("Failed to check rate limit", zap.Error(err))
			c.Next(ctx)
			return
		}

		c.Response.Header.Set("X-RateLimit-Limit", strconv.Itoa(config.MaxRequests))
		c.Response.Header.Set("X-RateLimit-Remaining", strconv.Itoa(max(0, config.MaxRequests-count)))
		c.Response.Header.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(config.Window).Unix(), 10))

		if !allowed {
			if err := limiter.Block(ctx, c); err != nil {
				logger.Logger.Warn("Failed to block client", zap.Error(err))
			}
			response.Error(ctx, c, errors.TooManyRequests)
			c.Abort()
			return
		}

		c.Next(ctx)
	}
}

// RefreshRateLimitMiddleware 强制刷新限流
func RefreshRateLimitMiddleware() app.HandlerFunc {
	return RateLimitMiddleware(RefreshRateLimitConfig)
}

// SubmitRateLimitMiddleware 打卡提交限流
func SubmitRateLimitMiddleware() app.HandlerFunc {
	return RateLimitMiddleware(SubmitRateLimitConfig)
}
