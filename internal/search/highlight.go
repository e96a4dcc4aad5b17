package search

import (
	"html/template"
	"sort"
	"strings"
	"unicode/utf8"
)

// Ellipsis marks text cut by Truncate.
const Ellipsis = "..."

// Segment is a run of display text, highlighted or plain.
type Segment struct {
	Text      string `json:"text"`
	Highlight bool   `json:"highlight,omitempty"`
}

// Truncate cuts text to its first maxLen runes and appends Ellipsis when
// anything was cut. maxLen <= 0 disables truncation. Invalid UTF-8 bytes
// come back as U+FFFD, one per byte, the way rune conversion decodes them.
func Truncate(text string, maxLen int) string {
	text = validUTF8(text)
	if maxLen <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen]) + Ellipsis
}

// Highlight splits text into segments after truncating it to maxLen runes.
// Spans are rune offsets into the untruncated text with inclusive ends; they
// are processed in start order, spans starting past maxLen are dropped and
// the rest are clamped to the visible text. Concatenating the returned
// segments always reproduces Truncate(text, maxLen).
func Highlight(text string, spans []Span, maxLen int) []Segment {
	runes := []rune(validUTF8(text))
	visible := runes
	truncated := false
	if maxLen > 0 && len(runes) > maxLen {
		visible = runes[:maxLen]
		truncated = true
	}
	n := len(visible)

	ordered := make([]Span, len(spans))
	copy(ordered, spans)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Start < ordered[j].Start
	})

	var b segmentBuilder
	last := 0
	for _, sp := range ordered {
		if maxLen > 0 && sp.Start > maxLen {
			continue
		}
		start := clamp(sp.Start, last, n)
		end := clamp(sp.End+1, 0, n)
		if end <= start {
			continue
		}
		b.add(string(visible[last:start]), false)
		b.add(string(visible[start:end]), true)
		last = end
	}
	b.add(string(visible[last:]), false)
	if truncated {
		b.add(Ellipsis, false)
	}
	return b.segments
}

// RenderHTML escapes the segments and wraps highlighted ones in <mark>.
func RenderHTML(segments []Segment) template.HTML {
	var sb strings.Builder
	for _, s := range segments {
		if s.Highlight {
			sb.WriteString("<mark>")
			sb.WriteString(template.HTMLEscapeString(s.Text))
			sb.WriteString("</mark>")
			continue
		}
		sb.WriteString(template.HTMLEscapeString(s.Text))
	}
	return template.HTML(sb.String())
}

// PlainText concatenates segment text.
func PlainText(segments []Segment) string {
	var sb strings.Builder
	for _, s := range segments {
		sb.WriteString(s.Text)
	}
	return sb.String()
}

type segmentBuilder struct {
	segments []Segment
}

// add appends text, merging adjacent plain runs.
func (b *segmentBuilder) add(text string, highlight bool) {
	if text == "" {
		return
	}
	if n := len(b.segments); n > 0 && !highlight && !b.segments[n-1].Highlight {
		b.segments[n-1].Text += text
		return
	}
	b.segments = append(b.segments, Segment{Text: text, Highlight: highlight})
}

// validUTF8 replaces each invalid byte with U+FFFD so rune offsets agree
// with a []rune conversion of the same text.
func validUTF8(text string) string {
	if utf8.ValidString(text) {
		return text
	}
	var sb strings.Builder
	sb.Grow(len(text) + 2)
	for _, r := range text {
		sb.WriteRune(r)
	}
	return sb.String()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return v
}
