// Package cache keeps rendered public listings in Redis. Concurrent misses
// for the same filter are coalesced with singleflight, and a circuit breaker
// lets requests bypass Redis entirely while it is failing.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/prompt"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/resilience"
)

const keyPrefix = "prompts:"

// Backend is the subset of the Redis client the cache needs.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
}

// LoadFunc produces the listing on a cache miss.
type LoadFunc func(ctx context.Context) ([]*prompt.Prompt, error)

type ListingCache struct {
	backend Backend
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a listing cache. m may be nil.
func New(backend Backend, ttl time.Duration, m *metrics.Metrics) *ListingCache {
	c := &ListingCache{
		backend: backend,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "listing-cache"),
	}
	c.breaker = resilience.NewCircuitBreaker("redis-listing", resilience.CircuitBreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     15 * time.Second,
		OnStateChange: func(name string, to resilience.State) {
			if m != nil {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
	return c
}

// Get returns the cached listing for filter, if any.
func (c *ListingCache) Get(ctx context.Context, filter prompt.ListFilter) ([]*prompt.Prompt, bool) {
	key := BuildKey(filter)
	var (
		data  []byte
		found bool
	)
	err := c.breaker.Execute(func() error {
		var err error
		data, found, err = c.backend.Get(ctx, key)
		return err
	})
	if err != nil {
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	if !found {
		c.miss()
		return nil, false
	}
	var prompts []*prompt.Prompt
	if err := json.Unmarshal(data, &prompts); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hit()
	return prompts, true
}

// Set stores a listing. Failures are logged and otherwise ignored.
func (c *ListingCache) Set(ctx context.Context, filter prompt.ListFilter, prompts []*prompt.Prompt) {
	key := BuildKey(filter)
	data, err := json.Marshal(prompts)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.backend.Set(ctx, key, data, c.ttl)
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrLoad serves filter from the cache or calls load once for all
// concurrent callers asking for the same filter. The boolean reports a
// cache hit.
func (c *ListingCache) GetOrLoad(ctx context.Context, filter prompt.ListFilter, load LoadFunc) ([]*prompt.Prompt, bool, error) {
	if prompts, ok := c.Get(ctx, filter); ok {
		return prompts, true, nil
	}
	key := BuildKey(filter)
	val, err, _ := c.group.Do(key, func() (any, error) {
		prompts, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(ctx, filter, prompts)
		return prompts, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]*prompt.Prompt), false, nil
}

// Invalidate drops every cached listing.
func (c *ListingCache) Invalidate(ctx context.Context) error {
	var deleted int64
	err := c.breaker.Execute(func() error {
		n, err := c.backend.DeletePrefix(ctx, keyPrefix)
		deleted = n
		return err
	})
	if err != nil {
		return fmt.Errorf("invalidating listing cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

// Stats returns the hit and miss counters since start.
func (c *ListingCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// BreakerState reports whether Redis is currently bypassed.
func (c *ListingCache) BreakerState() resilience.State {
	return c.breaker.GetState()
}

func (c *ListingCache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *ListingCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// BuildKey derives the Redis key for a filter. Filters differing only in
// the case of the tag or query share a key.
func BuildKey(filter prompt.ListFilter) string {
	raw := fmt.Sprintf("tag=%s|category=%s|q=%s|limit=%d",
		strings.ToLower(strings.TrimSpace(filter.Tag)),
		strings.TrimSpace(filter.Category),
		strings.ToLower(strings.TrimSpace(filter.Query)),
		filter.Limit,
	)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
