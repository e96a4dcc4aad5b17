package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout marks a call that ran past the limit given to WithTimeout.
var ErrTimeout = errors.New("deadline exceeded")

// WithTimeout bounds fn to limit. fn must honour ctx. When the limit, and
// not the caller's context, ended the call the returned error wraps
// ErrTimeout. A zero limit runs fn unbounded.
func WithTimeout(ctx context.Context, limit time.Duration, name string, fn func(ctx context.Context) error) error {
	if limit <= 0 {
		return fn(ctx)
	}
	bounded, cancel := context.WithTimeoutCause(ctx, limit, ErrTimeout)
	defer cancel()

	err := fn(bounded)
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && errors.Is(context.Cause(bounded), ErrTimeout) {
		return fmt.Errorf("%s: %w after %v", name, ErrTimeout, limit)
	}
	return err
}
