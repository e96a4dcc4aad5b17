package search

import (
	"math"
	"sort"
)

// epsilon stands in for a perfect field score so the product below never
// collapses to zero.
const epsilon = 2.220446049250313e-16

// combiner folds per-value match scores into one relevance in (0, 1]:
// 1 - product(score^(weight*norm)). Fewer errors in heavier, shorter fields
// push relevance towards 1.
type combiner struct {
	total float64
	hits  int
}

func newCombiner() combiner {
	return combiner{total: 1}
}

func (c *combiner) add(score, weight, norm float64) {
	if score == 0 {
		score = epsilon
	}
	c.total *= math.Pow(score, weight*norm)
	c.hits++
}

func (c combiner) relevance() float64 {
	return 1 - c.total
}

// rank orders results by descending relevance. Ties keep index order.
func rank(results []MatchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}
