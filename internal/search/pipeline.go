package search

import "strings"

// AllCategories is the category filter value that disables filtering.
const AllCategories = "All"

// Run executes one search: a blank query lists every record in index order,
// anything else is fuzzy matched and ranked. The category filter is applied
// afterwards so it never affects relevance.
func Run(idx *Index, query, category string) []MatchResult {
	var results []MatchResult
	if IsBlank(query) {
		results = idx.All()
	} else {
		results = idx.Match(query)
	}
	return FilterCategory(results, category)
}

// FilterCategory keeps results whose record category equals category. An
// empty category or AllCategories keeps everything.
func FilterCategory(results []MatchResult, category string) []MatchResult {
	category = strings.TrimSpace(category)
	if category == "" || category == AllCategories {
		return results
	}
	out := make([]MatchResult, 0, len(results))
	for _, r := range results {
		if r.Record.Category == category {
			out = append(out, r)
		}
	}
	return out
}

// Limit returns at most n results. n <= 0 returns results unchanged.
func Limit(results []MatchResult, n int) []MatchResult {
	if n <= 0 || len(results) <= n {
		return results
	}
	return results[:n]
}
