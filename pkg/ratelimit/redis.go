package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindow increments the counter and starts its expiry on the first hit
// of a window. It returns the count and the remaining TTL in milliseconds.
var fixedWindow = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
return {count, ttl}
`)

// RedisLimiter is a fixed-window counter shared by every replica of the service.
type RedisLimiter struct {
	client redis.Scripter
	prefix string
	limit  int
	window time.Duration
}

// NewRedisLimiter creates a limiter allowing limit requests per window for each key.
func NewRedisLimiter(client redis.Scripter, prefix string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, limit: limit, window: window}
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	vals, err := fixedWindow.Run(ctx, l.client, []string{l.prefix + key}, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("redis fixed window: %w", err)
	}
	if len(vals) != 2 {
		return Result{}, fmt.Errorf("redis fixed window: unexpected reply length %d", len(vals))
	}

	ttl := time.Duration(vals[1]) * time.Millisecond
	if ttl < 0 {
		ttl = l.window
	}
	return newResult(l.limit, vals[0], ttl), nil
}
