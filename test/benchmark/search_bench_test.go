package benchmark

import (
	"fmt"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/search"
)

var bodies = []string{
	"Analyze the following SQL query and suggest index changes that reduce its latency.",
	"Write a brief cold email to a prospect. Keep it under 120 words and end with a question.",
	"Explain the topic below in plain words a ten year old would follow, with one analogy.",
	strings.Repeat("Summarize the meeting notes into decisions, owners and open questions. ", 12),
}

var categories = []string{"Coding", "Business", "Learning", "Productivity"}

func corpus(n int) []*search.Record {
	records := make([]*search.Record, n)
	for i := range records {
		records[i] = &search.Record{
			ID:       fmt.Sprintf("p-%d", i),
			Title:    fmt.Sprintf("Prompt %d for %s", i, categories[i%len(categories)]),
			Body:     bodies[i%len(bodies)],
			Category: categories[i%len(categories)],
			Tags:     []string{"tag" + fmt.Sprint(i%7), "starter"},
		}
	}
	return records
}

// BenchmarkIndexBuild measures index construction for record sets of
// increasing size.
func BenchmarkIndexBuild(b *testing.B) {
	for _, n := range []int{50, 500, 5000} {
		records := corpus(n)
		b.Run(fmt.Sprintf("records_%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				idx := search.NewIndex(records, search.DefaultOptions())
				_ = idx
			}
		})
	}
}

// BenchmarkMatch measures one debounced query against a prebuilt index.
func BenchmarkMatch(b *testing.B) {
	idx := search.NewIndex(corpus(500), search.DefaultOptions())
	queries := []struct {
		name  string
		query string
	}{
		{"exact_short", "sql"},
		{"typo", "sumarize"},
		{"phrase", "cold email to a prospect"},
		{"no_match", "zzzzzNOMATCH"},
	}
	for _, q := range queries {
		b.Run(q.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				results := search.Run(idx, q.query, "")
				_ = results
			}
		})
	}
}

func BenchmarkMatchParallel(b *testing.B) {
	idx := search.NewIndex(corpus(500), search.DefaultOptions())
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			results := search.Run(idx, "email", "Business")
			_ = results
		}
	})
}

func BenchmarkHighlight(b *testing.B) {
	text := bodies[3]
	spans := []search.Span{{Start: 0, End: 8}, {Start: 30, End: 38}, {Start: 200, End: 210}}
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	for i := 0; i < b.N; i++ {
		segs := search.Highlight(text, spans, 160)
		_ = segs
	}
}
