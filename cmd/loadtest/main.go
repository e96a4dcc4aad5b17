// Command loadtest drives concurrent fuzzy searches against the API and
// reports throughput, latency percentiles and the share of empty results.
//
// Usage:
//
//	go run ./cmd/loadtest [-url http://localhost:8080] [-concurrency 10] [-duration 30s]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/prompt"
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/search"
)

// queries mixes exact words, typos and phrases so both the exact and the
// approximate paths of the matcher are exercised.
var queries = []string{
	"sql",
	"sqll optimizer",
	"cold email",
	"emial",
	"explain like",
	"regex",
	"regx builder",
	"marketing copy",
	"product descripton",
	"code review",
	"summarize",
	"bug report",
	"interview questions",
	"",
	"zzzzznomatch",
}

type searchResult struct {
	TotalHits int `json:"total_hits"`
}

type recorder struct {
	total     atomic.Int64
	failed    atomic.Int64
	emptyHits atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
	statuses  map[int]int64
}

func newRecorder() *recorder {
	return &recorder{
		latencies: make([]time.Duration, 0, 100_000),
		statuses:  make(map[int]int64),
	}
}

func (r *recorder) record(d time.Duration, status int, hits int, err error) {
	r.total.Add(1)
	if err != nil || status != http.StatusOK {
		r.failed.Add(1)
	} else if hits == 0 {
		r.emptyHits.Add(1)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		r.latencies = append(r.latencies, d)
		r.statuses[status]++
	}
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the api service")
	concurrency := flag.Int("concurrency", 10, "concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	limit := flag.Int("limit", 20, "results per search")
	flag.Parse()

	fmt.Println("=== PromptVault search load test ===")
	fmt.Printf("target       %s/api/v1/prompts/search\n", *baseURL)
	fmt.Printf("concurrency  %d\n", *concurrency)
	fmt.Printf("duration     %s\n", *duration)
	fmt.Printf("queries      %d\n\n", len(queries))

	rec := run(*baseURL, *concurrency, *duration, *limit)
	if !report(rec, *duration) {
		os.Exit(1)
	}
}

func run(baseURL string, concurrency int, duration time.Duration, limit int) *recorder {
	rec := newRecorder()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        concurrency * 2,
			MaxIdleConnsPerHost: concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	categories := append([]string{search.AllCategories}, prompt.Categories...)

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < concurrency; w++ {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				q := url.Values{}
				q.Set("q", queries[i%len(queries)])
				q.Set("limit", fmt.Sprint(limit))
				// Every fifth request narrows to a category.
				if i%5 == 0 {
					q.Set("category", categories[(i/5)%len(categories)])
				}
				start := time.Now()
				status, hits, err := searchOnce(ctx, client, baseURL+"/api/v1/prompts/search?"+q.Encode())
				if ctx.Err() != nil {
					return nil
				}
				rec.record(time.Since(start), status, hits, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return rec
}

func searchOnce(ctx context.Context, client *http.Client, rawURL string) (int, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	var body searchResult
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return resp.StatusCode, 0, err
		}
	}
	return resp.StatusCode, body.TotalHits, nil
}

func report(rec *recorder, duration time.Duration) bool {
	total := rec.total.Load()
	failed := rec.failed.Load()

	fmt.Println("=== results ===")
	fmt.Printf("requests     %d\n", total)
	fmt.Printf("failed       %d\n", failed)
	fmt.Printf("empty        %d\n", rec.emptyHits.Load())
	if total == 0 {
		fmt.Println("\nno requests completed; is the api service running?")
		return false
	}
	fmt.Printf("error rate   %.2f%%\n", float64(failed)/float64(total)*100)
	fmt.Printf("throughput   %.1f req/s\n", float64(total)/duration.Seconds())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	lat := slices.Clone(rec.latencies)
	slices.Sort(lat)
	if len(lat) > 0 {
		fmt.Println("\n=== latency ===")
		fmt.Printf("min  %s\n", lat[0])
		fmt.Printf("p50  %s\n", percentile(lat, 50))
		fmt.Printf("p90  %s\n", percentile(lat, 90))
		fmt.Printf("p99  %s\n", percentile(lat, 99))
		fmt.Printf("max  %s\n", lat[len(lat)-1])
	}

	fmt.Println("\n=== status codes ===")
	codes := make([]int, 0, len(rec.statuses))
	for c := range rec.statuses {
		codes = append(codes, c)
	}
	slices.Sort(codes)
	for _, c := range codes {
		fmt.Printf("%d  %d\n", c, rec.statuses[c])
	}
	return true
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
