package search

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		maxLen int
		want   string
	}{
		{"shorter than limit", "Hello", 10, "Hello"},
		{"exact limit", "Hello", 5, "Hello"},
		{"cut", "Hello world", 5, "Hello..."},
		{"zero disables", "Hello world", 0, "Hello world"},
		{"negative disables", "Hello world", -1, "Hello world"},
		{"multibyte", "héllo wörld", 7, "héllo w..."},
		{"empty", "", 3, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Truncate(tt.text, tt.maxLen))
		})
	}
}

func TestHighlight_TruncatedSpans(t *testing.T) {
	segs := Highlight("Hello world", []Span{{0, 4}, {6, 10}}, 5)

	assert.Equal(t, []Segment{
		{Text: "Hello", Highlight: true},
		{Text: "..."},
	}, segs)
	assert.Equal(t, "Hello...", PlainText(segs))
}

func TestHighlight_NoTruncation(t *testing.T) {
	segs := Highlight("Hello world", []Span{{6, 10}, {0, 4}}, 0)

	assert.Equal(t, []Segment{
		{Text: "Hello", Highlight: true},
		{Text: " "},
		{Text: "world", Highlight: true},
	}, segs)
}

func TestHighlight_OverlappingSpans(t *testing.T) {
	segs := Highlight("abcdefgh", []Span{{1, 4}, {3, 6}}, 0)

	assert.Equal(t, []Segment{
		{Text: "a"},
		{Text: "bcde", Highlight: true},
		{Text: "fg", Highlight: true},
		{Text: "h"},
	}, segs)
}

func TestHighlight_SpanCrossingCut(t *testing.T) {
	segs := Highlight("Hello world", []Span{{3, 8}}, 5)

	assert.Equal(t, []Segment{
		{Text: "Hel"},
		{Text: "lo", Highlight: true},
		{Text: "..."},
	}, segs)
}

func TestHighlight_NoSpans(t *testing.T) {
	assert.Equal(t, []Segment{{Text: "plain"}}, Highlight("plain", nil, 0))
	assert.Empty(t, Highlight("", []Span{{0, 3}}, 10))
}

func TestHighlight_ConcatenationMatchesTruncate(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	alphabet := []rune("abc déf ghï jkl")

	for i := 0; i < 500; i++ {
		n := rng.Intn(40)
		text := make([]rune, n)
		for j := range text {
			text[j] = alphabet[rng.Intn(len(alphabet))]
		}
		spans := make([]Span, rng.Intn(6))
		for j := range spans {
			start := rng.Intn(n+10) - 3
			spans[j] = Span{Start: start, End: start + rng.Intn(12) - 2}
		}
		maxLen := rng.Intn(30) - 2

		segs := Highlight(string(text), spans, maxLen)
		assert.Equal(t, Truncate(string(text), maxLen), PlainText(segs),
			"text=%q spans=%v maxLen=%d", string(text), spans, maxLen)
	}
}

func TestHighlight_InvalidUTF8(t *testing.T) {
	text := "İSTANBUL ǆx ﬀoo \xff\xfe"

	segs := Highlight(text, []Span{{16, 17}}, 0)
	assert.Equal(t, []Segment{
		{Text: "İSTANBUL ǆx ﬀoo "},
		{Text: "\uFFFD\uFFFD", Highlight: true},
	}, segs)
	assert.Equal(t, Truncate(text, 0), PlainText(segs))
	assert.Equal(t, "İSTANBUL ǆx ﬀoo \uFFFD\uFFFD", Truncate(text, 0))

	for _, maxLen := range []int{-1, 5, 16, 17, 18, 40} {
		segs := Highlight(text, []Span{{0, 2}, {16, 17}}, maxLen)
		assert.Equal(t, Truncate(text, maxLen), PlainText(segs), "maxLen=%d", maxLen)
	}
	assert.Equal(t, "İSTANBUL ǆx ﬀoo \uFFFD...", Truncate(text, 17))
}

func TestRenderHTML(t *testing.T) {
	segs := []Segment{
		{Text: "<b>"},
		{Text: "SQL & co", Highlight: true},
	}
	assert.Equal(t, "&lt;b&gt;<mark>SQL &amp; co</mark>", string(RenderHTML(segs)))
}
