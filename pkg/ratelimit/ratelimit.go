// Package ratelimit 基于 Redis 的请求限流，保护积分引擎的写入口：
// 匿名流量按来源 IP 限速，record_activity 这类账户写入再叠加单账户限速，
// 防止单个律师账户的异常刷分流量挤占整个引擎
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// RateLimiter 限流器接口
type RateLimiter interface {
	// Allow 检查 key 在给定规则下是否放行
	Allow(ctx context.Context, key string, limit Limit) (*Result, error)
}

// Limit 限流规则
type Limit struct {
	Rate   int
	Period time.Duration
	Burst  int
}

// PerSecond 按秒限速的规则；burst 为 0 时取 rate
func PerSecond(rate, burst int) Limit {
	if burst <= 0 {
		burst = rate
	}
	return Limit{Rate: rate, Period: time.Second, Burst: burst}
}

// Result 单次限流检查结果
type Result struct {
	Allowed    bool
	Remaining  int
	ResetAfter time.Duration
	RetryAfter time.Duration
}

// IPKey 来源 IP 维度的限流键
func IPKey(ip string) string {
	return "pointsengine:rl:ip:" + ip
}

// AccountKey 律师账户维度的限流键，覆盖积分写入与账户查询
func AccountKey(accountID string) string {
	return "pointsengine:rl:acct:" + accountID
}

// RedisRateLimiter 基于 redis_rate（GCRA 算法）的限流实现，多实例共享配额
type RedisRateLimiter struct {
	limiter *redis_rate.Limiter
}

// NewRedisRateLimiter 创建 Redis 限流器
func NewRedisRateLimiter(rdb *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{
		limiter: redis_rate.NewLimiter(rdb),
	}
}

// Allow 检查请求是否放行
func (r *RedisRateLimiter) Allow(ctx context.Context, key string, limit Limit) (*Result, error) {
	res, err := r.limiter.Allow(ctx, key, redis_rate.Limit{
		Rate:   limit.Rate,
		Period: limit.Period,
		Burst:  limit.Burst,
	})
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	return &Result{
		Allowed:    res.Allowed > 0,
		Remaining:  res.Remaining,
		ResetAfter: res.ResetAfter,
		RetryAfter: res.RetryAfter,
	}, nil
}
