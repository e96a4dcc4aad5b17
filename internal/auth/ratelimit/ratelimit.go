// Package ratelimit throttles mutating requests per caller. The in-memory
// token bucket suits a single replica; the Redis fixed window is shared by
// every replica behind the same Redis.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one Allow call. RetryAfter is only meaningful
// when the request was refused.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter admits or refuses one request for key. A limit of zero or less
// disables limiting.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int) (Decision, error)
}

var allowed = Decision{Allowed: true}
