package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/prompt"
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/search"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/metrics"
)

type fakeSource struct {
	mu      sync.Mutex
	prompts []*prompt.Prompt
	loads   int
	err     error
}

func (s *fakeSource) Snapshot(ctx context.Context) ([]*prompt.Prompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.err != nil {
		return nil, s.err
	}
	return s.prompts, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []kafka.Event
}

func (p *fakePublisher) Publish(ctx context.Context, e kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *fakePublisher) PublishBatch(ctx context.Context, events []kafka.Event) error {
	for _, e := range events {
		_ = p.Publish(ctx, e)
	}
	return nil
}

type countingInvalidator struct{ calls int }

func (i *countingInvalidator) Invalidate(ctx context.Context) error {
	i.calls++
	return nil
}

func seeded() *fakeSource {
	return &fakeSource{prompts: []*prompt.Prompt{
		{ID: "1", Title: "SQL Query Optimizer", Body: "Analyze this query", Category: "Coding", Tags: []string{"sql"}},
		{ID: "2", Title: "Cold Email That Gets Replies", Body: "Write a cold email", Category: "Business"},
	}}
}

func TestSearch_BuildsOnce(t *testing.T) {
	src := seeded()
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	c := New(src, search.DefaultOptions(), 0, WithMetrics(m))

	for i := 0; i < 3; i++ {
		results, err := c.Search(context.Background(), "sql", "")
		require.NoError(t, err)
		require.NotEmpty(t, results)
		assert.Equal(t, "1", results[0].Record.ID)
	}
	assert.Equal(t, 1, src.loads)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexRebuildsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.IndexedPrompts))
}

func TestChanged_RebuildsAndPublishes(t *testing.T) {
	src := seeded()
	pub := &fakePublisher{}
	inv := &countingInvalidator{}
	c := New(src, search.DefaultOptions(), 0, WithPublisher(pub), WithListingCache(inv), WithInstanceID("replica-a"))

	_, err := c.Search(context.Background(), "", "")
	require.NoError(t, err)

	src.mu.Lock()
	src.prompts = append(src.prompts, &prompt.Prompt{ID: "3", Title: "Regex Builder", Category: "Coding"})
	src.mu.Unlock()
	c.Changed(context.Background(), "create", "3")

	results, err := c.Search(context.Background(), "", "Coding")
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, 2, src.loads)
	assert.Equal(t, 1, inv.calls)

	require.Len(t, pub.events, 1)
	notice, ok := pub.events[0].Value.(Notice)
	require.True(t, ok)
	assert.Equal(t, "replica-a", notice.Origin)
	assert.Equal(t, "3", notice.PromptID)
}

func TestHandleNotice(t *testing.T) {
	c := New(seeded(), search.DefaultOptions(), 0, WithInstanceID("replica-a"))
	start := c.Generation()

	own, _ := json.Marshal(Notice{Origin: "replica-a", Reason: "update"})
	require.NoError(t, c.HandleNotice(context.Background(), nil, own))
	assert.Equal(t, start, c.Generation())

	remote, _ := json.Marshal(Notice{Origin: "replica-b", Reason: "update", At: time.Now()})
	require.NoError(t, c.HandleNotice(context.Background(), nil, remote))
	assert.Equal(t, start+1, c.Generation())

	assert.True(t, kafka.IsPoison(c.HandleNotice(context.Background(), nil, []byte("{"))))
}

func TestSearch_StaleOnReloadFailure(t *testing.T) {
	src := seeded()
	c := New(src, search.DefaultOptions(), 0)
	_, err := c.Search(context.Background(), "", "")
	require.NoError(t, err)

	src.mu.Lock()
	src.err = errors.New("db down")
	src.mu.Unlock()
	c.Changed(context.Background(), "delete", "2")

	results, err := c.Search(context.Background(), "", "")
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearch_NoIndexYet(t *testing.T) {
	c := New(&fakeSource{err: errors.New("db down")}, search.DefaultOptions(), 0)
	_, err := c.Search(context.Background(), "sql", "")
	assert.Error(t, err)
}
