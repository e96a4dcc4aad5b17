package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Counter increments key and starts its expiry on the first hit, returning
// the new count and the time left in the window.
type Counter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// Redis counts requests in fixed windows stored in Redis.
type Redis struct {
	counter Counter
	window  time.Duration
	prefix  string
}

func NewRedis(counter Counter, window time.Duration) *Redis {
	return &Redis{counter: counter, window: window, prefix: "ratelimit:"}
}

func (r *Redis) Allow(ctx context.Context, key string, limit int) (Decision, error) {
	if limit <= 0 {
		return allowed, nil
	}
	n, left, err := r.counter.IncrWindow(ctx, r.prefix+key, r.window)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit counter for %s: %w", key, err)
	}
	if n <= int64(limit) {
		return allowed, nil
	}
	if left <= 0 {
		left = r.window
	}
	return Decision{RetryAfter: left}, nil
}
