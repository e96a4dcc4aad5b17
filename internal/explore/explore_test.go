package explore

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/prompt"
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/search"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func starterPrompts() []*prompt.Prompt {
	return []*prompt.Prompt{
		{ID: "1", Title: "SQL Query Optimizer", Body: "Analyze the following SQL query and suggest index changes.", Category: "Coding", Tags: []string{"sql", "database"}},
		{ID: "2", Title: "Cold Email That Gets Replies", Body: "Write a brief cold email to a prospect.", Category: "Business", Tags: []string{"email", "outreach"}},
		{ID: "3", Title: "Regex Builder", Body: "Write a regular expression for the pattern I describe.", Category: "Coding", Tags: []string{"regex"}},
	}
}

func TestLoader_OnlyLatestIsCurrent(t *testing.T) {
	l := NewLoader(func(ctx context.Context) ([]*prompt.Prompt, error) {
		return starterPrompts(), nil
	})
	first := l.Begin()
	second := l.Begin()
	assert.False(t, l.Current(first))
	assert.True(t, l.Current(second))

	res := l.Load(context.Background(), first)
	assert.Equal(t, first, res.Seq)
	assert.Len(t, res.Prompts, 3)
	assert.False(t, l.Current(res.Seq))
}

func TestLoader_PropagatesError(t *testing.T) {
	l := NewLoader(func(ctx context.Context) ([]*prompt.Prompt, error) {
		return nil, errors.New("offline")
	})
	res := l.Load(context.Background(), l.Begin())
	assert.EqualError(t, res.Err, "offline")
	assert.Nil(t, res.Prompts)
}

func TestDebouncer_CoalescesBursts(t *testing.T) {
	var runs atomic.Int32
	d := NewDebouncer(20*time.Millisecond, func() { runs.Add(1) })
	for i := 0; i < 5; i++ {
		d.Trigger()
		time.Sleep(2 * time.Millisecond)
	}
	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())
}

func TestDebouncer_Stop(t *testing.T) {
	var runs atomic.Int32
	d := NewDebouncer(10*time.Millisecond, func() { runs.Add(1) })
	d.Trigger()
	d.Stop()
	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, runs.Load())
}

func TestState_EmptyBeforeLoad(t *testing.T) {
	s := NewState(search.DefaultOptions(), 20)
	assert.False(t, s.Loaded())
	s.Query = "sql"
	assert.Empty(t, s.Results())
}

func TestState_BlankQueryKeepsOrder(t *testing.T) {
	s := NewState(search.DefaultOptions(), 20)
	s.SetPrompts(starterPrompts())
	require.True(t, s.Loaded())

	cards := s.Results()
	require.Len(t, cards, 3)
	for i, c := range cards {
		assert.Equal(t, starterPrompts()[i].ID, c.Prompt.ID)
		assert.Zero(t, c.Score)
	}
	assert.Equal(t, "Analyze the followin...", search.PlainText(cards[0].Body))
}

func TestState_HighlightsMatches(t *testing.T) {
	s := NewState(search.DefaultOptions(), 0)
	s.SetPrompts(starterPrompts())
	s.Query = "sql"

	cards := s.Results()
	require.NotEmpty(t, cards)
	top := cards[0]
	assert.Equal(t, "1", top.Prompt.ID)
	require.NotEmpty(t, top.Title)
	assert.Equal(t, search.Segment{Text: "SQL", Highlight: true}, top.Title[0])
	require.Len(t, top.Tags, 2)
	assert.Equal(t, []search.Segment{{Text: "sql", Highlight: true}}, top.Tags[0])
}

func TestState_CategoryFilter(t *testing.T) {
	s := NewState(search.DefaultOptions(), 0)
	s.SetPrompts(starterPrompts())
	s.Category = "Coding"

	cards := s.Results()
	require.Len(t, cards, 2)
	assert.Equal(t, "1", cards[0].Prompt.ID)
	assert.Equal(t, "3", cards[1].Prompt.ID)

	s.Query = "zzzzzNOMATCH"
	assert.Empty(t, s.Results())
}

func TestState_ReloadReplacesRecords(t *testing.T) {
	s := NewState(search.DefaultOptions(), 0)
	s.SetPrompts(starterPrompts())
	s.SetPrompts(starterPrompts()[:1])
	assert.Equal(t, 1, s.Len())
	assert.Len(t, s.Results(), 1)
}
