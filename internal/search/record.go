// Package search implements the in-memory fuzzy search pipeline used by the
// explore views: an index built once per record set, a location-agnostic
// approximate substring matcher with weighted fields, and a highlight
// renderer that maps match spans back onto truncated display text.
//
// The package performs no I/O. Callers load records, build an Index (or let
// a Holder manage rebuilds), and call Run on every debounced query.
package search

import "strconv"

// Field names a searchable record field.
type Field string

const (
	FieldTitle    Field = "title"
	FieldBody     Field = "body"
	FieldCategory Field = "category"
	FieldTags     Field = "tags"
)

// Fields lists the searchable fields in their canonical order.
var Fields = []Field{FieldTitle, FieldBody, FieldCategory, FieldTags}

// Record is one searchable prompt. Records are treated as immutable while an
// index references them.
type Record struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
	Copies   int      `json:"copies"`
}

// Span is a highlighted range of rune offsets. End is inclusive.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of runes covered by the span.
func (s Span) Len() int {
	return s.End - s.Start + 1
}

// MatchResult is one ranked hit. Record is shared with the index and must
// not be modified. Spans is keyed by field name; each tag is keyed
// separately through TagKey because tags are matched one value at a time.
// Results produced by the unranked listing carry a zero Score and no Spans.
type MatchResult struct {
	Record *Record           `json:"record"`
	Score  float64           `json:"score"`
	Spans  map[string][]Span `json:"spans,omitempty"`
}

// TagKey returns the Spans key for the i-th tag.
func TagKey(i int) string {
	return string(FieldTags) + "[" + strconv.Itoa(i) + "]"
}
