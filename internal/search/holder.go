package search

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Loader fetches the current record set.
type Loader func(ctx context.Context) ([]*Record, error)

type snapshot struct {
	generation uint64
	builtAt    time.Time
	index      *Index
}

// Holder keeps the most recent Index and rebuilds it only when the record
// set generation moves or the snapshot is older than maxAge. Readers never
// block on a rebuild that another goroutine has already finished.
type Holder struct {
	opts    Options
	maxAge  time.Duration
	current atomic.Pointer[snapshot]
	mu      sync.Mutex
	now     func() time.Time

	// OnRebuild, when set, is called after every rebuild.
	OnRebuild func(records int, took time.Duration)
}

// NewHolder creates an empty holder. maxAge <= 0 disables age based
// rebuilds.
func NewHolder(opts Options, maxAge time.Duration) *Holder {
	return &Holder{
		opts:   opts.withDefaults(),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Index returns an index for generation, building it with load when the held
// one is missing, stale or from another generation.
func (h *Holder) Index(ctx context.Context, generation uint64, load Loader) (*Index, error) {
	if s := h.current.Load(); h.fresh(s, generation) {
		return s.index, nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if s := h.current.Load(); h.fresh(s, generation) {
		return s.index, nil
	}

	start := h.now()
	records, err := load(ctx)
	if err != nil {
		if s := h.current.Load(); s != nil {
			return s.index, fmt.Errorf("reloading records: %w", err)
		}
		return nil, fmt.Errorf("loading records: %w", err)
	}
	idx := NewIndex(records, h.opts)
	h.current.Store(&snapshot{generation: generation, builtAt: h.now(), index: idx})
	if h.OnRebuild != nil {
		h.OnRebuild(idx.Len(), h.now().Sub(start))
	}
	return idx, nil
}

// Current returns the held index without rebuilding, or nil.
func (h *Holder) Current() *Index {
	if s := h.current.Load(); s != nil {
		return s.index
	}
	return nil
}

func (h *Holder) fresh(s *snapshot, generation uint64) bool {
	if s == nil || s.generation != generation {
		return false
	}
	return h.maxAge <= 0 || h.now().Sub(s.builtAt) < h.maxAge
}
