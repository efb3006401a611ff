package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter shares a fixed window across processes using SET NX with a TTL.
// When Redis cannot be reached the request is allowed.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	window time.Duration
}

// NewRedis creates a distributed limiter. Keys are stored as prefix+key.
func NewRedis(client *redis.Client, prefix string, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &RedisLimiter{
		client: client,
		prefix: prefix,
		window: window,
	}
}

func (l *RedisLimiter) Allow(key string) bool {
	if l.window <= 0 {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ok, err := l.client.SetNX(ctx, l.prefix+key, time.Now().Unix(), l.window).Result()
	if err != nil {
		return true
	}
	return ok
}

var _ RateLimiter = (*RedisLimiter)(nil)
