package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/kafka"
)

// maxLatencySamples bounds the latency window used for percentiles.
const maxLatencySamples = 10000

type AggregatedStats struct {
	TotalSearches     int64         `json:"total_searches"`
	ZeroResultCount   int64         `json:"zero_result_count"`
	TotalCopies       int64         `json:"total_copies"`
	PromptsCreated    int64         `json:"prompts_created"`
	PromptsDeleted    int64         `json:"prompts_deleted"`
	AvgLatencyMs      float64       `json:"avg_latency_ms"`
	P50LatencyMs      int64         `json:"p50_latency_ms"`
	P95LatencyMs      int64         `json:"p95_latency_ms"`
	P99LatencyMs      int64         `json:"p99_latency_ms"`
	TopQueries        []QueryCount  `json:"top_queries"`
	ZeroResultQueries []QueryCount  `json:"zero_result_queries"`
	TopCategories     []QueryCount  `json:"top_categories"`
	MostCopied        []PromptCount `json:"most_copied"`
	QueriesPerMinute  float64       `json:"queries_per_minute"`
	Since             time.Time     `json:"since"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

type PromptCount struct {
	PromptID string `json:"prompt_id"`
	Title    string `json:"title,omitempty"`
	Count    int64  `json:"count"`
}

// Aggregator folds the event stream into running totals. It is safe for
// concurrent use.
type Aggregator struct {
	mu                sync.RWMutex
	totalSearches     int64
	zeroResults       int64
	totalCopies       int64
	created           int64
	deleted           int64
	latencies         []int64
	latencyNext       int
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	categoryCounts    map[string]int64
	copyCounts        map[string]int64
	titles            map[string]string
	startTime         time.Time
	now               func() time.Time

	logger *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:         make([]int64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		categoryCounts:    make(map[string]int64),
		copyCounts:        make(map[string]int64),
		titles:            make(map[string]string),
		startTime:         time.Now(),
		now:               time.Now,
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleEvent adapts the aggregator to a Kafka message handler. Malformed
// messages are logged and skipped so one bad event cannot stall the
// consumer.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		if err := agg.Record(value); err != nil {
			return kafka.Poison(err)
		}
		return nil
	}
}

// Record decodes one encoded event and applies it.
func (a *Aggregator) Record(value []byte) error {
	var env envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return err
	}
	switch env.Type {
	case EventSearch:
		event, err := kafka.DecodeJSON[SearchEvent](value)
		if err != nil {
			return err
		}
		a.RecordSearch(event)
	case EventCopy, EventPromptCreated, EventPromptDeleted:
		event, err := kafka.DecodeJSON[PromptEvent](value)
		if err != nil {
			return err
		}
		a.RecordPrompt(event)
	default:
		a.logger.Debug("ignoring unknown analytics event", "type", env.Type)
	}
	return nil
}

func (a *Aggregator) RecordSearch(event SearchEvent) {
	query := normalizeQuery(event.Query)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalSearches++
	a.addLatency(event.LatencyMs)
	if query != "" {
		a.queryCounts[query]++
	}
	if event.Category != "" {
		a.categoryCounts[event.Category]++
	}
	if event.TotalHits == 0 && query != "" {
		a.zeroResults++
		a.zeroResultQueries[query]++
	}
}

func (a *Aggregator) RecordPrompt(event PromptEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if event.Title != "" {
		a.titles[event.PromptID] = event.Title
	}
	switch event.Type {
	case EventCopy:
		a.totalCopies++
		a.copyCounts[event.PromptID]++
	case EventPromptCreated:
		a.created++
	case EventPromptDeleted:
		a.deleted++
		delete(a.copyCounts, event.PromptID)
		delete(a.titles, event.PromptID)
	}
}

// Restore seeds the counters from a persisted snapshot so totals survive
// restarts. Latency percentiles start fresh.
func (a *Aggregator) Restore(s AggregatedStats) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalSearches += s.TotalSearches
	a.zeroResults += s.ZeroResultCount
	a.totalCopies += s.TotalCopies
	a.created += s.PromptsCreated
	a.deleted += s.PromptsDeleted
	for _, q := range s.TopQueries {
		a.queryCounts[q.Query] += q.Count
	}
	for _, q := range s.ZeroResultQueries {
		a.zeroResultQueries[q.Query] += q.Count
	}
	for _, c := range s.TopCategories {
		a.categoryCounts[c.Query] += c.Count
	}
	for _, p := range s.MostCopied {
		a.copyCounts[p.PromptID] += p.Count
		if p.Title != "" {
			a.titles[p.PromptID] = p.Title
		}
	}
	if !s.Since.IsZero() && s.Since.Before(a.startTime) {
		a.startTime = s.Since
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSearches:   a.totalSearches,
		ZeroResultCount: a.zeroResults,
		TotalCopies:     a.totalCopies,
		PromptsCreated:  a.created,
		PromptsDeleted:  a.deleted,
		Since:           a.startTime,
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, 10)
	stats.TopCategories = topN(a.categoryCounts, 10)
	for _, c := range topN(a.copyCounts, 10) {
		stats.MostCopied = append(stats.MostCopied, PromptCount{
			PromptID: c.Query,
			Title:    a.titles[c.Query],
			Count:    c.Count,
		})
	}
	if elapsed := a.now().Sub(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

// addLatency keeps the most recent maxLatencySamples values. Callers hold
// the write lock.
func (a *Aggregator) addLatency(ms int64) {
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, ms)
		return
	}
	a.latencies[a.latencyNext] = ms
	a.latencyNext = (a.latencyNext + 1) % maxLatencySamples
}

func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN returns the n largest counts, ties broken by key.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
