// Package tui renders the explore view in the terminal: a search box,
// category tabs, and result cards with the matched characters marked.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/explore"
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/prompt"
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/search"
)

// clipboardWriteAll is a package-level variable to allow mocking in tests.
var clipboardWriteAll = clipboard.WriteAll

const (
	DefaultDebounce = 300 * time.Millisecond
	revealInterval  = 40 * time.Millisecond
)

// Copier records that a prompt was copied and returns the new count.
type Copier interface {
	CopyPrompt(ctx context.Context, id string) (int, error)
}

type (
	loadedMsg   explore.LoadResult
	debounceMsg struct{ seq uint64 }
	revealMsg   struct{ gen uint64 }
	copiedMsg   struct {
		id     string
		copies int
		err    error
	}
)

// Config tunes the model.
type Config struct {
	Options        search.Options
	SnippetLength  int
	MaxQueryLength int
	Debounce       time.Duration
}

type Model struct {
	ctx    context.Context
	state  *explore.State
	loader *explore.Loader
	copier Copier
	input  textinput.Model
	styles styles

	tabs      []string
	tab       int
	cards     []explore.Card
	cursor    int
	revealed  int
	revealGen uint64

	keySeq   uint64
	debounce time.Duration

	loading bool
	err     error
	status  string

	width  int
	height int
}

// New creates the explore model. copier may be nil, in which case copies
// only reach the clipboard.
func New(ctx context.Context, fetch explore.FetchFunc, copier Copier, cfg Config) Model {
	ti := textinput.New()
	ti.Placeholder = "Search prompts..."
	ti.Prompt = "/ "
	ti.CharLimit = cfg.MaxQueryLength
	ti.Focus()

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return Model{
		ctx:      ctx,
		state:    explore.NewState(cfg.Options, cfg.SnippetLength),
		loader:   explore.NewLoader(fetch),
		copier:   copier,
		input:    ti,
		styles:   defaultStyles(),
		tabs:     append([]string{search.AllCategories}, prompt.Categories...),
		debounce: debounce,
		width:    80,
		height:   24,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.load())
}

func (m Model) load() tea.Cmd {
	seq := m.loader.Begin()
	return func() tea.Msg {
		return loadedMsg(m.loader.Load(m.ctx, seq))
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.Width = msg.Width - 4
		return m, nil

	case loadedMsg:
		if !m.loader.Current(msg.Seq) {
			return m, nil
		}
		m.loading = false
		if msg.Err != nil {
			m.err = msg.Err
			return m, nil
		}
		m.err = nil
		m.state.SetPrompts(msg.Prompts)
		return m, m.refresh()

	case debounceMsg:
		if msg.seq != m.keySeq {
			return m, nil
		}
		m.state.Query = m.input.Value()
		return m, m.refresh()

	case revealMsg:
		if msg.gen != m.revealGen || m.revealed >= len(m.cards) {
			return m, nil
		}
		m.revealed++
		return m, m.revealTick()

	case copiedMsg:
		if msg.err != nil {
			m.status = m.styles.Error.Render("Copied to clipboard, but the copy count was not updated: " + msg.err.Error())
			return m, nil
		}
		for _, c := range m.cards {
			if c.Prompt.ID == msg.id {
				c.Prompt.Copies = msg.copies
			}
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return m, tea.Quit
	case tea.KeyLeft:
		m.tab = (m.tab + len(m.tabs) - 1) % len(m.tabs)
		m.state.Category = m.tabs[m.tab]
		return m, m.refresh()
	case tea.KeyRight, tea.KeyTab:
		m.tab = (m.tab + 1) % len(m.tabs)
		m.state.Category = m.tabs[m.tab]
		return m, m.refresh()
	case tea.KeyUp:
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case tea.KeyDown:
		if m.cursor < len(m.cards)-1 {
			m.cursor++
		}
		return m, nil
	case tea.KeyCtrlR:
		m.loading = true
		return m, m.load()
	case tea.KeyEnter:
		return m.copySelected()
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.input.Value() == before {
		return m, cmd
	}
	m.keySeq++
	seq := m.keySeq
	tick := tea.Tick(m.debounce, func(time.Time) tea.Msg { return debounceMsg{seq: seq} })
	return m, tea.Batch(cmd, tick)
}

func (m Model) copySelected() (tea.Model, tea.Cmd) {
	if m.cursor >= len(m.cards) {
		return m, nil
	}
	p := m.cards[m.cursor].Prompt
	if err := clipboardWriteAll(p.Body); err != nil {
		m.status = m.styles.Error.Render("Failed to copy prompt: " + err.Error())
		return m, nil
	}
	m.status = m.styles.Success.Render(fmt.Sprintf("Copied %q to clipboard", p.Title))
	if m.copier == nil {
		return m, nil
	}
	ctx, copier, id := m.ctx, m.copier, p.ID
	return m, func() tea.Msg {
		copies, err := copier.CopyPrompt(ctx, id)
		return copiedMsg{id: id, copies: copies, err: err}
	}
}

// refresh recomputes the cards and restarts the reveal animation.
func (m *Model) refresh() tea.Cmd {
	m.cards = m.state.Results()
	if m.cursor >= len(m.cards) {
		m.cursor = max(len(m.cards)-1, 0)
	}
	m.revealed = 0
	m.revealGen++
	if len(m.cards) == 0 {
		return nil
	}
	return m.revealTick()
}

func (m Model) revealTick() tea.Cmd {
	gen := m.revealGen
	return tea.Tick(revealInterval, func(time.Time) tea.Msg { return revealMsg{gen: gen} })
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render("PromptVault"))
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.renderTabs())
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(m.styles.Error.Render("Could not load prompts: " + m.err.Error()))
		b.WriteString("\n")
	}

	switch {
	case !m.state.Loaded() && m.err == nil:
		b.WriteString(m.styles.Muted.Render("Loading prompts..."))
		b.WriteString("\n")
	case m.state.Loaded() && len(m.cards) == 0:
		b.WriteString(m.styles.Muted.Render("No prompts match."))
		b.WriteString("\n")
	default:
		for i, c := range m.visibleCards() {
			b.WriteString(m.renderCard(c, i == m.cursor))
			b.WriteString("\n")
		}
	}

	if m.status != "" {
		b.WriteString(m.status)
		b.WriteString("\n")
	}
	b.WriteString(m.styles.Muted.Render("←/→ category  ↑/↓ select  enter copy  ctrl+r reload  esc quit"))
	return b.String()
}

func (m Model) visibleCards() []explore.Card {
	end := min(m.revealed, len(m.cards))
	return m.cards[:end]
}

func (m Model) renderTabs() string {
	parts := make([]string, len(m.tabs))
	for i, t := range m.tabs {
		if i == m.tab {
			parts[i] = m.styles.ActiveTab.Render(t)
		} else {
			parts[i] = m.styles.Tab.Render(t)
		}
	}
	return strings.Join(parts, "")
}

func (m Model) renderCard(c explore.Card, selected bool) string {
	var b strings.Builder
	b.WriteString(m.renderSegments(c.Title))
	b.WriteString(m.styles.Muted.Render(fmt.Sprintf("  %s · %d copies", c.Prompt.Category, c.Prompt.Copies)))
	b.WriteString("\n")
	b.WriteString(m.renderSegments(c.Body))
	if len(c.Tags) > 0 {
		b.WriteString("\n")
		for i, tag := range c.Tags {
			if i > 0 {
				b.WriteString(" ")
			}
			b.WriteString(m.styles.Tag.Render("#"))
			b.WriteString(m.renderSegments(tag))
		}
	}
	style := m.styles.Card
	if selected {
		style = m.styles.Selected
	}
	return style.Width(max(m.width-4, 20)).Render(b.String())
}

func (m Model) renderSegments(segs []search.Segment) string {
	var b strings.Builder
	for _, s := range segs {
		if s.Highlight {
			b.WriteString(m.styles.Mark.Render(s.Text))
		} else {
			b.WriteString(s.Text)
		}
	}
	return b.String()
}
