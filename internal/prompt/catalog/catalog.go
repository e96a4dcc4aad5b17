// Package catalog serves fuzzy search over the public prompt set. It owns
// the in-memory index, rebuilds it when the record set changes and keeps
// replicas in step by publishing change notices on Kafka.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/prompt"
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/search"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/metrics"
)

// Source loads the public prompt set.
type Source interface {
	Snapshot(ctx context.Context) ([]*prompt.Prompt, error)
}

// Invalidator drops cached listings.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Notice is the payload published on the cache invalidation topic.
type Notice struct {
	Origin   string    `json:"origin"`
	Reason   string    `json:"reason"`
	PromptID string    `json:"prompt_id,omitempty"`
	At       time.Time `json:"at"`
}

type Catalog struct {
	source     Source
	holder     *search.Holder
	generation atomic.Uint64
	instanceID string
	publisher  kafka.Publisher
	listings   Invalidator
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithPublisher publishes change notices for other replicas.
func WithPublisher(p kafka.Publisher) Option {
	return func(c *Catalog) { c.publisher = p }
}

// WithListingCache flushes cached listings whenever the catalog changes.
func WithListingCache(inv Invalidator) Option {
	return func(c *Catalog) { c.listings = inv }
}

// WithMetrics records index rebuilds.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Catalog) { c.metrics = m }
}

// WithInstanceID overrides the random replica id used to ignore our own
// notices.
func WithInstanceID(id string) Option {
	return func(c *Catalog) { c.instanceID = id }
}

// New creates a catalog. maxAge bounds how long an index is served without
// a reload even when no change notice arrives.
func New(source Source, opts search.Options, maxAge time.Duration, options ...Option) *Catalog {
	c := &Catalog{
		source:     source,
		holder:     search.NewHolder(opts, maxAge),
		instanceID: uuid.NewString(),
		logger:     slog.Default().With("component", "catalog"),
	}
	for _, o := range options {
		o(c)
	}
	c.generation.Store(1)
	c.holder.OnRebuild = func(records int, took time.Duration) {
		c.logger.Info("search index rebuilt",
			"records", records,
			"took_ms", took.Milliseconds(),
			"generation", c.generation.Load(),
		)
		if c.metrics != nil {
			c.metrics.IndexRebuildsTotal.Inc()
			c.metrics.IndexedPrompts.Set(float64(records))
		}
	}
	return c
}

// InstanceID identifies this replica in change notices.
func (c *Catalog) InstanceID() string {
	return c.instanceID
}

// Generation returns the current record set generation.
func (c *Catalog) Generation() uint64 {
	return c.generation.Load()
}

// Index returns the index for the current generation, rebuilding if needed.
// When a reload fails the previous index is returned together with the
// error so callers can keep serving stale results.
func (c *Catalog) Index(ctx context.Context) (*search.Index, error) {
	return c.holder.Index(ctx, c.generation.Load(), c.load)
}

// Search runs the fuzzy pipeline over the public prompt set.
func (c *Catalog) Search(ctx context.Context, query, category string) ([]search.MatchResult, error) {
	idx, err := c.Index(ctx)
	if idx == nil {
		return nil, err
	}
	if err != nil {
		c.logger.Warn("serving stale search index", "error", err)
	}
	return search.Run(idx, query, category), nil
}

// Warm builds the first index so the first request does not pay for it.
func (c *Catalog) Warm(ctx context.Context) error {
	_, err := c.Index(ctx)
	return err
}

// Changed records a local write: the index is marked stale, cached
// listings are dropped and other replicas are told to do the same.
func (c *Catalog) Changed(ctx context.Context, reason, promptID string) {
	c.invalidateLocal(ctx, reason)
	if c.publisher == nil {
		return
	}
	notice := Notice{
		Origin:   c.instanceID,
		Reason:   reason,
		PromptID: promptID,
		At:       time.Now().UTC(),
	}
	if err := c.publisher.Publish(ctx, kafka.Event{Key: "catalog", Value: notice}); err != nil {
		c.logger.Error("failed to publish change notice", "reason", reason, "error", err)
	}
}

// HandleNotice is the Kafka handler for change notices from other
// replicas. Our own notices are ignored.
func (c *Catalog) HandleNotice(ctx context.Context, key, value []byte) error {
	var n Notice
	if err := json.Unmarshal(value, &n); err != nil {
		return kafka.Poison(fmt.Errorf("decoding change notice: %w", err))
	}
	if n.Origin == c.instanceID {
		return nil
	}
	c.generation.Add(1)
	c.logger.Debug("remote change notice", "origin", n.Origin, "reason", n.Reason)
	return nil
}

func (c *Catalog) invalidateLocal(ctx context.Context, reason string) {
	gen := c.generation.Add(1)
	c.logger.Debug("catalog changed", "reason", reason, "generation", gen)
	if c.listings == nil {
		return
	}
	if err := c.listings.Invalidate(ctx); err != nil {
		c.logger.Warn("listing cache invalidation failed", "error", err)
	}
}

func (c *Catalog) load(ctx context.Context) ([]*search.Record, error) {
	prompts, err := c.source.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return prompt.Records(prompts), nil
}
