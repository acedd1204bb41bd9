package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zapgestor/zapgestor/internal/pkg/ratelimiter"
)

// Incrementa e seta a expiração de forma atômica para que réplicas
// concorrentes enxerguem a mesma janela.
var rateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
    redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

type RedisLimiter struct {
	client *redis.Client
}

func NewLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{
		client: client,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (*ratelimiter.Result, error) {
	windowMs := window.Milliseconds()

	vals, err := rateLimitScript.Run(ctx, l.client, []string{key}, windowMs).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("redis limiter: %w", err)
	}

	if len(vals) < 2 {
		return nil, fmt.Errorf("redis limiter: invalid response")
	}

	current := vals[0]
	ttlMs := vals[1]

	remaining := limit - int(current)
	if remaining < 0 {
		remaining = 0
	}

	resetAfter := time.Duration(ttlMs) * time.Millisecond
	if ttlMs < 0 {
		resetAfter = window
	}

	return &ratelimiter.Result{
		Allowed:    current <= int64(limit),
		Remaining:  remaining,
		Reset:      time.Now().Add(resetAfter),
		RetryAfter: resetAfter,
	}, nil
}
