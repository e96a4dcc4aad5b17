package search

import "strings"

// Match returns every record with at least one field within the fuzzy
// threshold, ordered by descending relevance. A blank query yields nil;
// callers wanting the unfiltered listing use All or Run.
func (idx *Index) Match(query string) []MatchResult {
	if idx == nil || IsBlank(query) {
		return nil
	}
	pattern := normalize(strings.TrimSpace(query))

	var results []MatchResult
	for i := range idx.entries {
		if r, ok := idx.matchEntry(&idx.entries[i], pattern); ok {
			results = append(results, r)
		}
	}
	rank(results)
	return results
}

func (idx *Index) matchEntry(e *indexEntry, pattern []rune) (MatchResult, bool) {
	comb := newCombiner()
	var spans map[string][]Span
	for _, f := range Fields {
		weight, ok := idx.weights[f]
		if !ok {
			continue
		}
		for _, v := range e.values[f] {
			fm, ok := matchValue(pattern, v.runes, idx.opts.Threshold, idx.opts.MinMatchLength)
			if !ok {
				continue
			}
			comb.add(fm.score, weight, v.norm)
			if spans == nil {
				spans = make(map[string][]Span, 2)
			}
			spans[v.key] = fm.spans
		}
	}
	if comb.hits == 0 {
		return MatchResult{}, false
	}
	return MatchResult{
		Record: e.record,
		Score:  comb.relevance(),
		Spans:  spans,
	}, true
}
