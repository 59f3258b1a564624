package store

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisLimiter backs the webhook's per-IP fixed-window rate limit and the
// daily broadcast budget. Counters live in Redis so they survive restarts
// and are shared if the HTTP surface ever runs more than one worker.
type RedisLimiter struct {
	client *RedisClient
}

func NewRedisLimiter(client *RedisClient) *RedisLimiter {
	return &RedisLimiter{client: client}
}

// Allow increments the counter for key within the window and reports whether
// the call stays under max.
func (l *RedisLimiter) Allow(ctx context.Context, key string, window time.Duration, max int) (bool, error) {
	k := l.client.generateKey("ratelimit", key)
	n, err := l.client.client.Incr(ctx, k).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		if err := l.client.client.Expire(ctx, k, window).Err(); err != nil {
			return false, err
		}
	}
	return n <= int64(max), nil
}

// IncrDaily bumps a per-day counter (UTC date-bucketed) and returns the new
// count. Keys expire after two days.
func (l *RedisLimiter) IncrDaily(ctx context.Context, name string) (int64, error) {
	day := time.Now().UTC().Format("2006-01-02")
	k := l.client.generateKey("daily", name, day)
	n, err := l.client.client.Incr(ctx, k).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if err := l.client.client.Expire(ctx, k, 48*time.Hour).Err(); err != nil {
			return 0, err
		}
	}
	return n, nil
}

func (l *RedisLimiter) GetDaily(ctx context.Context, name string) (int64, error) {
	day := time.Now().UTC().Format("2006-01-02")
	k := l.client.generateKey("daily", name, day)
	n, err := l.client.client.Get(ctx, k).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}
