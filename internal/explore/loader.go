// Package explore holds the presentation-independent state of the explore
// view: which load is current, the debounced query and the search index
// over the last accepted record set.
package explore

import (
	"context"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/prompt"
)

// FetchFunc loads the public prompt set.
type FetchFunc func(ctx context.Context) ([]*prompt.Prompt, error)

// LoadResult is the outcome of one load. Seq identifies the load that
// produced it.
type LoadResult struct {
	Seq     uint64
	Prompts []*prompt.Prompt
	Err     error
}

// Loader numbers loads so that a response arriving after a newer load was
// issued can be recognised and dropped.
type Loader struct {
	mu     sync.Mutex
	latest uint64
	fetch  FetchFunc
}

func NewLoader(fetch FetchFunc) *Loader {
	return &Loader{fetch: fetch}
}

// Begin issues the next sequence number.
func (l *Loader) Begin() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.latest++
	return l.latest
}

// Current reports whether seq is the most recently issued load.
func (l *Loader) Current(seq uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return seq == l.latest
}

// Load runs the fetch for a load previously started with Begin.
func (l *Loader) Load(ctx context.Context, seq uint64) LoadResult {
	prompts, err := l.fetch(ctx)
	return LoadResult{Seq: seq, Prompts: prompts, Err: err}
}
