package handler

import (
	"embed"
	"html/template"
	"net/http"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/search"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/logger"
)

//go:embed templates/explore.html
var templateFS embed.FS

var exploreTmpl = template.Must(template.ParseFS(templateFS, "templates/explore.html"))

type exploreCard struct {
	ID       string
	Title    template.HTML
	Body     template.HTML
	Category string
	Tags     []string
	Copies   int
}

type explorePage struct {
	Query      string
	Category   string
	Categories []string
	Total      int
	Cards      []exploreCard
	Error      string
}

// Explore renders GET /explore: the same pipeline as the search endpoint,
// rendered as HTML with <mark> highlights.
func (h *Handler) Explore(w http.ResponseWriter, r *http.Request) {
	page := explorePage{
		Query:      strings.TrimSpace(r.URL.Query().Get("q")),
		Category:   r.URL.Query().Get("category"),
		Categories: append([]string{search.AllCategories}, h.cfg.Categories...),
	}
	if page.Category == "" {
		page.Category = search.AllCategories
	}

	results, err := h.searcher.Search(r.Context(), page.Query, page.Category)
	if err != nil {
		logger.FromContext(r.Context()).Error("explore search failed", "error", err)
		page.Error = "Search is temporarily unavailable."
	}
	page.Total = len(results)
	for _, res := range search.Limit(results, h.cfg.ExploreLimit) {
		rec := res.Record
		page.Cards = append(page.Cards, exploreCard{
			ID:       rec.ID,
			Title:    search.RenderHTML(search.Highlight(rec.Title, res.Spans[string(search.FieldTitle)], 0)),
			Body:     search.RenderHTML(search.Highlight(rec.Body, res.Spans[string(search.FieldBody)], h.cfg.SnippetLength)),
			Category: rec.Category,
			Tags:     rec.Tags,
			Copies:   rec.Copies,
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := exploreTmpl.Execute(w, page); err != nil {
		logger.FromContext(r.Context()).Error("rendering explore page", "error", err)
	}
}
