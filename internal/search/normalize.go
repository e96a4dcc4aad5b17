package search

import (
	"math"
	"strings"
	"unicode"
)

// normalize lower-cases text rune by rune so that offsets into the result
// are offsets into []rune(text).
func normalize(text string) []rune {
	runes := []rune(text)
	for i, r := range runes {
		runes[i] = unicode.ToLower(r)
	}
	return runes
}

// IsBlank reports whether a query contains nothing but whitespace.
func IsBlank(query string) bool {
	return strings.TrimSpace(query) == ""
}

// countTokens returns the number of whitespace separated words in text.
func countTokens(text string) int {
	return len(strings.FieldsFunc(text, unicode.IsSpace))
}

// fieldNorm dampens matches in long values: 1/sqrt(words), rounded to three
// decimals. An empty value gets norm 1.
func fieldNorm(text string) float64 {
	n := countTokens(text)
	if n == 0 {
		return 1
	}
	return math.Round(1/math.Sqrt(float64(n))*1000) / 1000
}
