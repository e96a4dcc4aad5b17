package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/explore"
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/search"
)

// plainExplorer prints explore results for the latest query. The debounce
// timer and the input loop both reach it, so it guards the state.
type plainExplorer struct {
	mu      sync.Mutex
	state   *explore.State
	out     io.Writer
	pending bool
}

func (p *plainExplorer) setQuery(q string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Query = q
	p.pending = true
}

// flush prints the results of the last query set, at most once per query.
func (p *plainExplorer) flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.pending {
		return
	}
	p.pending = false
	printCards(p.out, p.state.Query, p.state.Results())
}

// runPlainExplore reads one query per line from in. Results are printed once
// the input pauses for delay, and for the last query when in is exhausted.
func runPlainExplore(in io.Reader, out io.Writer, st *explore.State, delay time.Duration, maxQuery int) error {
	p := &plainExplorer{state: st, out: out}
	d := explore.NewDebouncer(delay, p.flush)
	defer d.Stop()

	sc := bufio.NewScanner(in)
	for sc.Scan() {
		q := strings.TrimSpace(sc.Text())
		if maxQuery > 0 {
			if r := []rune(q); len(r) > maxQuery {
				q = string(r[:maxQuery])
			}
		}
		p.setQuery(q)
		d.Trigger()
	}
	d.Stop()
	p.flush()
	return sc.Err()
}

// printCards writes one row per card, marking matched text with brackets.
func printCards(w io.Writer, query string, cards []explore.Card) {
	fmt.Fprintf(w, "> %s\n", query)
	if len(cards) == 0 {
		fmt.Fprintln(w, "No prompts match.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tCATEGORY\tSNIPPET")
	for _, c := range cards {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.Prompt.ID, bracketed(c.Title), c.Prompt.Category,
			strings.ReplaceAll(bracketed(c.Body), "\n", " "))
	}
	_ = tw.Flush()
}

func bracketed(segs []search.Segment) string {
	var sb strings.Builder
	for _, s := range segs {
		if s.Highlight {
			sb.WriteString("[" + s.Text + "]")
			continue
		}
		sb.WriteString(s.Text)
	}
	return sb.String()
}
