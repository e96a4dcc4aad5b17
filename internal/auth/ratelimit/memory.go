package ratelimit

import (
	"context"
	"sync"
	"time"
)

const sweepEvery = 5 * time.Minute

type bucket struct {
	tokens float64
	seen   time.Time
}

// Memory is a token bucket per key. A key holds at most limit tokens and
// regains limit tokens per window.
type Memory struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	window  time.Duration
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

// NewMemory starts the limiter and its idle-key sweeper. Call Close to stop
// the sweeper.
func NewMemory(window time.Duration) *Memory {
	m := &Memory{
		buckets: make(map[string]*bucket),
		window:  window,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

func (m *Memory) Allow(_ context.Context, key string, limit int) (Decision, error) {
	if limit <= 0 {
		return allowed, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	capacity := float64(limit)
	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{tokens: capacity, seen: now}
		m.buckets[key] = b
	}
	perSecond := capacity / m.window.Seconds()
	b.tokens = min(capacity, b.tokens+now.Sub(b.seen).Seconds()*perSecond)
	b.seen = now

	if b.tokens >= 1 {
		b.tokens--
		return allowed, nil
	}
	wait := time.Duration((1 - b.tokens) / perSecond * float64(time.Second))
	return Decision{RetryAfter: wait}, nil
}

// Reset forgets key.
func (m *Memory) Reset(key string) {
	m.mu.Lock()
	delete(m.buckets, key)
	m.mu.Unlock()
}

func (m *Memory) Close() {
	m.once.Do(func() { close(m.stop) })
}

func (m *Memory) sweepLoop() {
	ticker := time.NewTicker(sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stop:
			return
		}
	}
}

// sweep drops buckets idle long enough to have refilled completely.
func (m *Memory) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-2 * m.window)
	for key, b := range m.buckets {
		if b.seen.Before(cutoff) {
			delete(m.buckets, key)
		}
	}
}
