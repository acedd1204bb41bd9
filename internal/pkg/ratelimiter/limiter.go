package ratelimiter

import (
	"context"
	"time"
)

type Result struct {
	Allowed    bool
	Remaining  int
	Reset      time.Time
	RetryAfter time.Duration
}

// Limiter implementa janela fixa por chave. A chave costuma ser o IP de
// origem do webhook, mas qualquer string serve.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}
