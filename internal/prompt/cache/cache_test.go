package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/prompt"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/resilience"
)

type memBackend struct {
	mu      sync.Mutex
	data    map[string]string
	failing bool
	gets    int
}

func newMemBackend() *memBackend {
	return &memBackend{data: make(map[string]string)}
}

func (b *memBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gets++
	if b.failing {
		return nil, false, errors.New("connection refused")
	}
	v, ok := b.data[key]
	if !ok {
		return nil, false, nil
	}
	return []byte(v), true, nil
}

func (b *memBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failing {
		return errors.New("connection refused")
	}
	b.data[key] = string(value)
	return nil
}

func (b *memBackend) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var n int64
	for k := range b.data {
		if strings.HasPrefix(k, prefix) {
			delete(b.data, k)
			n++
		}
	}
	return n, nil
}

func sample() []*prompt.Prompt {
	return []*prompt.Prompt{{ID: "a", Title: "SQL Query Optimizer", Tags: []string{"sql"}, Copies: 3}}
}

func TestGetOrLoad_MissThenHit(t *testing.T) {
	c := New(newMemBackend(), time.Minute, nil)
	filter := prompt.ListFilter{Tag: "sql", Limit: 50}

	var loads int
	load := func(ctx context.Context) ([]*prompt.Prompt, error) {
		loads++
		return sample(), nil
	}

	got, hit, err := c.GetOrLoad(context.Background(), filter, load)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "SQL Query Optimizer", got[0].Title)

	got, hit, err = c.GetOrLoad(context.Background(), filter, load)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 3, got[0].Copies)
	assert.Equal(t, 1, loads)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestGetOrLoad_Coalesces(t *testing.T) {
	c := New(newMemBackend(), time.Minute, nil)
	var loads atomic.Int32
	release := make(chan struct{})
	load := func(ctx context.Context) ([]*prompt.Prompt, error) {
		loads.Add(1)
		<-release
		return sample(), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.GetOrLoad(context.Background(), prompt.ListFilter{Limit: 50}, load)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, loads.Load(), int32(2))
}

func TestGetOrLoad_LoadError(t *testing.T) {
	c := New(newMemBackend(), time.Minute, nil)
	_, _, err := c.GetOrLoad(context.Background(), prompt.ListFilter{}, func(ctx context.Context) ([]*prompt.Prompt, error) {
		return nil, errors.New("db down")
	})
	assert.Error(t, err)
}

func TestBreakerBypassesFailingRedis(t *testing.T) {
	backend := newMemBackend()
	backend.failing = true
	c := New(backend, time.Minute, nil)
	load := func(ctx context.Context) ([]*prompt.Prompt, error) {
		return sample(), nil
	}

	for i := 0; i < 5; i++ {
		got, hit, err := c.GetOrLoad(context.Background(), prompt.ListFilter{}, load)
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Len(t, got, 1)
	}
	assert.Equal(t, resilience.StateOpen, c.BreakerState())

	backend.mu.Lock()
	gets := backend.gets
	backend.mu.Unlock()
	_, _, err := c.GetOrLoad(context.Background(), prompt.ListFilter{}, load)
	require.NoError(t, err)
	backend.mu.Lock()
	assert.Equal(t, gets, backend.gets, "open breaker must not reach redis")
	backend.mu.Unlock()
}

func TestInvalidate(t *testing.T) {
	backend := newMemBackend()
	c := New(backend, time.Minute, nil)
	c.Set(context.Background(), prompt.ListFilter{}, sample())
	require.NoError(t, c.Invalidate(context.Background()))

	_, ok := c.Get(context.Background(), prompt.ListFilter{})
	assert.False(t, ok)
}

func TestBuildKey(t *testing.T) {
	a := BuildKey(prompt.ListFilter{Tag: "SQL", Query: " Index ", Limit: 50})
	b := BuildKey(prompt.ListFilter{Tag: "sql", Query: "index", Limit: 50})
	c := BuildKey(prompt.ListFilter{Tag: "sql", Query: "index", Limit: 20})
	assert.Equal(t, a, b)
	assert.NotEqual(t, b, c)
	assert.Contains(t, a, keyPrefix)
}
