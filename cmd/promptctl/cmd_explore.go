package main

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/explore"
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/explore/tui"
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/prompt"
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/search"
)

var exploreCmd = &cobra.Command{
	Use:   "explore",
	Short: "Search the public library interactively",
	Long: `Opens the explore view. Type to fuzzy-search titles, text, categories
and tags; ←/→ switch category, ↑/↓ select, enter copies the selected
prompt, ctrl+r reloads and esc quits.

With --plain each line read from standard input replaces the query, and
the matches are printed once typing pauses for the search debounce.`,
	RunE: runExplore,
}

var (
	explorePlain    bool
	exploreCategory string
)

func init() {
	exploreCmd.Flags().BoolVar(&explorePlain, "plain", false, "line mode: read queries from stdin and print matches")
	exploreCmd.Flags().StringVar(&exploreCategory, "category", search.AllCategories, "category filter for --plain")
}

func runExplore(cmd *cobra.Command, args []string) error {
	opts, err := search.OptionsFromConfig(cfg.Search.Weights, cfg.Search.Threshold, cfg.Search.MinMatchLength)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	fetch := func(ctx context.Context) ([]*prompt.Prompt, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return api.ListPrompts(ctx, prompt.ListFilter{Limit: cfg.Search.MaxResults})
	}
	if explorePlain {
		prompts, err := fetch(ctx)
		if err != nil {
			return err
		}
		st := explore.NewState(opts, cfg.Search.SnippetLength)
		st.SetPrompts(prompts)
		st.Category = exploreCategory
		return runPlainExplore(cmd.InOrStdin(), cmd.OutOrStdout(), st, cfg.Search.Debounce, cfg.Search.MaxQueryLength)
	}
	model := tui.New(ctx, fetch, api, tui.Config{
		Options:        opts,
		SnippetLength:  cfg.Search.SnippetLength,
		MaxQueryLength: cfg.Search.MaxQueryLength,
		Debounce:       cfg.Search.Debounce,
	})
	_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
