// Package tracing times the stages of a request and logs them as a single
// structured record. Sampling is decided once per trace.
package tracing

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

type ctxKey struct{}

// Trace collects stage timings for one request.
type Trace struct {
	Name    string
	ID      string
	Sampled bool

	start  time.Time
	logger *slog.Logger

	mu     sync.Mutex
	stages []*Stage
	attrs  []any
}

// Stage is one timed step inside a trace.
type Stage struct {
	Name     string
	Duration time.Duration
	start    time.Time
}

// Start begins a trace that Finish logs with probability rate. Traces are
// timed whether or not they are sampled.
func Start(ctx context.Context, name, id string, rate float64) (context.Context, *Trace) {
	t := &Trace{
		Name:    name,
		ID:      id,
		Sampled: rate >= 1 || (rate > 0 && rand.Float64() < rate),
		start:   time.Now(),
		logger:  slog.Default().With("component", "tracing"),
	}
	return context.WithValue(ctx, ctxKey{}, t), t
}

// FromContext returns the trace started on ctx, if any.
func FromContext(ctx context.Context) *Trace {
	t, _ := ctx.Value(ctxKey{}).(*Trace)
	return t
}

// Stage starts timing a named step. Call End on the result.
func (t *Trace) Stage(name string) *Stage {
	s := &Stage{Name: name, start: time.Now()}
	t.mu.Lock()
	t.stages = append(t.stages, s)
	t.mu.Unlock()
	return s
}

// End stops the stage clock and returns the elapsed time.
func (s *Stage) End() time.Duration {
	s.Duration = time.Since(s.start)
	return s.Duration
}

// Set attaches an attribute logged with the trace.
func (t *Trace) Set(key string, value any) {
	t.mu.Lock()
	t.attrs = append(t.attrs, key, value)
	t.mu.Unlock()
}

// Finish returns the total duration and logs the trace when sampled.
func (t *Trace) Finish() time.Duration {
	total := time.Since(t.start)
	if !t.Sampled {
		return total
	}
	t.mu.Lock()
	args := []any{"trace", t.Name, "trace_id", t.ID, "total_ms", msFloat(total)}
	for _, s := range t.stages {
		args = append(args, s.Name+"_ms", msFloat(s.Duration))
	}
	args = append(args, t.attrs...)
	t.mu.Unlock()
	t.logger.Info("trace", args...)
	return total
}

func msFloat(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
