package explore

import (
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/prompt"
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/search"
)

// Card is one prompt ready for display.
type Card struct {
	Prompt *prompt.Prompt
	Score  float64
	Title  []search.Segment
	Body   []search.Segment
	Tags   [][]search.Segment
}

// State is the explore view model. It is not safe for concurrent use; the
// UI event loop owns it.
type State struct {
	opts       search.Options
	snippetLen int
	prompts    map[string]*prompt.Prompt
	idx        *search.Index
	loaded     bool

	Query    string
	Category string
}

// NewState creates an empty state. snippetLen bounds the body preview.
func NewState(opts search.Options, snippetLen int) *State {
	return &State{
		opts:       opts,
		snippetLen: snippetLen,
		prompts:    map[string]*prompt.Prompt{},
		idx:        search.NewIndex(nil, opts),
		Category:   search.AllCategories,
	}
}

// SetPrompts replaces the record set and rebuilds the index.
func (s *State) SetPrompts(prompts []*prompt.Prompt) {
	s.prompts = make(map[string]*prompt.Prompt, len(prompts))
	for _, p := range prompts {
		s.prompts[p.ID] = p
	}
	s.idx = search.NewIndex(prompt.Records(prompts), s.opts)
	s.loaded = true
}

// Loaded reports whether a record set was ever accepted.
func (s *State) Loaded() bool {
	return s.loaded
}

// Len returns the size of the record set.
func (s *State) Len() int {
	return s.idx.Len()
}

// Results runs the current query and category over the index.
func (s *State) Results() []Card {
	results := search.Run(s.idx, s.Query, s.Category)
	cards := make([]Card, 0, len(results))
	for _, res := range results {
		p, ok := s.prompts[res.Record.ID]
		if !ok {
			continue
		}
		card := Card{
			Prompt: p,
			Score:  res.Score,
			Title:  search.Highlight(p.Title, res.Spans[string(search.FieldTitle)], 0),
			Body:   search.Highlight(p.Body, res.Spans[string(search.FieldBody)], s.snippetLen),
			Tags:   make([][]search.Segment, len(p.Tags)),
		}
		for i, tag := range p.Tags {
			card.Tags[i] = search.Highlight(tag, res.Spans[search.TagKey(i)], 0)
		}
		cards = append(cards, card)
	}
	return cards
}
