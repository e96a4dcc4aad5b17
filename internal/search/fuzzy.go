package search

import "math"

// fieldMatch is the outcome of matching the query against one value.
type fieldMatch struct {
	errors int
	score  float64
	spans  []Span
}

// candidate is an alignment of the whole pattern ending at text offset end.
type candidate struct {
	start, end, errors int
}

// matchValue finds the substrings of text closest to pattern in edit
// distance, anywhere in text. The value matches when the best distance over
// the pattern length does not exceed threshold and at least one aligned
// substring is minLen runes or longer. Both inputs must already be
// normalised.
func matchValue(pattern, text []rune, threshold float64, minLen int) (fieldMatch, bool) {
	m := len(pattern)
	if m == 0 || len(text) == 0 {
		return fieldMatch{}, false
	}
	if spans := exactOccurrences(pattern, text); len(spans) > 0 {
		spans = dropShort(spans, minLen)
		if len(spans) == 0 {
			return fieldMatch{}, false
		}
		return fieldMatch{score: 0, spans: spans}, true
	}

	maxErrors := int(math.Floor(threshold * float64(m)))
	if maxErrors <= 0 {
		return fieldMatch{}, false
	}
	cands := alignments(pattern, text, maxErrors)
	if len(cands) == 0 {
		return fieldMatch{}, false
	}
	best := cands[0].errors
	for _, c := range cands[1:] {
		if c.errors < best {
			best = c.errors
		}
	}
	spans := dropShort(pickSpans(cands, best), minLen)
	if len(spans) == 0 {
		return fieldMatch{}, false
	}
	return fieldMatch{
		errors: best,
		score:  float64(best) / float64(m),
		spans:  spans,
	}, true
}

// exactOccurrences returns the non-overlapping exact occurrences of pattern.
func exactOccurrences(pattern, text []rune) []Span {
	var spans []Span
	m := len(pattern)
	for i := 0; i+m <= len(text); {
		if equalRunes(text[i:i+m], pattern) {
			spans = append(spans, Span{Start: i, End: i + m - 1})
			i += m
			continue
		}
		i++
	}
	return spans
}

func equalRunes(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// alignments runs the semi-global edit distance recurrence: the pattern must
// be consumed completely while the text alignment may start and end
// anywhere. It returns every end position whose best alignment stays within
// maxErrors, along with where that alignment starts.
func alignments(pattern, text []rune, maxErrors int) []candidate {
	m := len(pattern)
	prev := make([]int, m+1)
	cur := make([]int, m+1)
	prevStart := make([]int, m+1)
	curStart := make([]int, m+1)
	for i := 0; i <= m; i++ {
		prev[i] = i
	}

	var out []candidate
	for j, tc := range text {
		cur[0] = 0
		curStart[0] = j + 1
		for i := 1; i <= m; i++ {
			cost := 1
			if pattern[i-1] == tc {
				cost = 0
			}
			best, start := prev[i-1]+cost, prevStart[i-1]
			if v := cur[i-1] + 1; v < best {
				best, start = v, curStart[i-1]
			}
			if v := prev[i] + 1; v < best {
				best, start = v, prevStart[i]
			}
			cur[i], curStart[i] = best, start
		}
		if cur[m] <= maxErrors && curStart[m] <= j {
			out = append(out, candidate{start: curStart[m], end: j, errors: cur[m]})
		}
		prev, cur = cur, prev
		prevStart, curStart = curStart, prevStart
	}
	return out
}

// pickSpans keeps the alignments at the best distance and resolves
// overlapping ones to the longest of each overlapping run.
func pickSpans(cands []candidate, best int) []Span {
	var (
		spans   []Span
		chosen  Span
		runEnd  = -1
		haveRun bool
	)
	for _, c := range cands {
		if c.errors != best {
			continue
		}
		s := Span{Start: c.start, End: c.end}
		if haveRun && s.Start <= runEnd {
			if s.Len() > chosen.Len() {
				chosen = s
			}
			if s.End > runEnd {
				runEnd = s.End
			}
			continue
		}
		if haveRun {
			spans = append(spans, chosen)
		}
		chosen, runEnd, haveRun = s, s.End, true
	}
	if haveRun {
		spans = append(spans, chosen)
	}
	return nonOverlapping(spans)
}

// nonOverlapping trims spans so that each starts after the previous ends.
func nonOverlapping(spans []Span) []Span {
	out := spans[:0]
	last := -1
	for _, s := range spans {
		if s.Start <= last {
			s.Start = last + 1
		}
		if s.Start > s.End {
			continue
		}
		out = append(out, s)
		last = s.End
	}
	return out
}

func dropShort(spans []Span, minLen int) []Span {
	out := spans[:0]
	for _, s := range spans {
		if s.Len() >= minLen {
			out = append(out, s)
		}
	}
	return out
}
