package aggregator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/analytics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingSaver struct {
	mu    sync.Mutex
	saved []analytics.AggregatedStats
	fail  bool
}

func (r *recordingSaver) SaveSnapshot(ctx context.Context, stats analytics.AggregatedStats) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("db down")
	}
	r.saved = append(r.saved, stats)
	return nil
}

func (r *recordingSaver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saved)
}

func TestRunPeriodic_SkipsUnchangedAndSavesOnShutdown(t *testing.T) {
	agg := analytics.NewAggregator()
	saver := &recordingSaver{}
	ctx, cancel := context.WithCancel(context.Background())

	done := RunPeriodic(ctx, saver, agg, 5*time.Millisecond)

	agg.RecordSearch(analytics.SearchEvent{Type: analytics.EventSearch, Query: "sql", TotalHits: 1})
	assert.Eventually(t, func() bool { return saver.count() == 1 }, time.Second, time.Millisecond)

	// No new events: further ticks write nothing.
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, saver.count())

	cancel()
	<-done
	assert.Equal(t, 2, saver.count())
	assert.Equal(t, int64(1), saver.saved[1].TotalSearches)
}

func TestRunPeriodic_RetriesAfterFailure(t *testing.T) {
	agg := analytics.NewAggregator()
	agg.RecordPrompt(analytics.PromptEvent{Type: analytics.EventCopy, PromptID: "p1"})
	saver := &recordingSaver{fail: true}
	ctx, cancel := context.WithCancel(context.Background())

	done := RunPeriodic(ctx, saver, agg, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	saver.mu.Lock()
	saver.fail = false
	saver.mu.Unlock()
	assert.Eventually(t, func() bool { return saver.count() >= 1 }, time.Second, time.Millisecond)

	cancel()
	<-done
}
