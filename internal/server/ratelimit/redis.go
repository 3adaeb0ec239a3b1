package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisLimiter shares counters between server instances. Each window is a
// separate key, <prefix>:<policy>:<key>:<windowIndex>, incremented with INCR
// and expiring one window after its first use.
type RedisLimiter struct {
	client *redis.Client
	policy Policy
	prefix string
	now    func() time.Time
}

// NewRedisLimiter returns a Redis-backed limiter for p.
func NewRedisLimiter(client *redis.Client, p Policy, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisLimiter{
		client: client,
		policy: p,
		prefix: prefix,
		now:    time.Now,
	}
}

func (l *RedisLimiter) Policy() Policy { return l.policy }

// Allow increments the caller's counter. On a Redis error it returns an
// allowing Decision together with the error, so callers fail open.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	idx, resetAt := windowBounds(l.now(), l.policy.Window)
	redisKey := fmt.Sprintf("%s:%s:%s:%d", l.prefix, l.policy.Name, key, idx)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.policy.Window)

	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{Allowed: true, Limit: l.policy.Limit, Remaining: l.policy.Limit, ResetAt: resetAt},
			fmt.Errorf("redis error: %w", err)
	}

	return decide(l.policy, incr.Val(), resetAt), nil
}

// NewRedisClient parses a redis:// URL and verifies the server answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
