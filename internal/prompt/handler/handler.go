// Package handler implements the prompt endpoints of the REST API: public
// listings, fuzzy search with highlight segments, owner-scoped writes and
// the copy counter.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/auth/token"
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/prompt"
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/prompt/cache"
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/prompt/validator"
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/search"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/promptvault/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/tracing"
)

const maxBodyBytes = 1 << 20

// Store is the persistence the handlers need.
type Store interface {
	ListPublic(ctx context.Context, filter prompt.ListFilter) ([]*prompt.Prompt, error)
	Get(ctx context.Context, id string) (*prompt.Prompt, error)
	ListByOwner(ctx context.Context, userID string) ([]*prompt.Prompt, error)
	Create(ctx context.Context, owner string, req *prompt.CreateRequest) (*prompt.Prompt, error)
	Update(ctx context.Context, id, owner string, req *prompt.UpdateRequest) (*prompt.Prompt, error)
	Delete(ctx context.Context, id, owner string) error
	IncrementCopies(ctx context.Context, id string) (int, error)
}

// Catalog serves fuzzy search and is told about every write.
type Catalog interface {
	Search(ctx context.Context, query, category string) ([]search.MatchResult, error)
	Changed(ctx context.Context, reason, promptID string)
	Generation() uint64
}

// Listings caches public listings.
type Listings interface {
	GetOrLoad(ctx context.Context, filter prompt.ListFilter, load cache.LoadFunc) ([]*prompt.Prompt, bool, error)
	Stats() (hits, misses int64)
	BreakerState() resilience.State
}

// EventTracker receives search and prompt lifecycle events.
type EventTracker interface {
	Track(event any)
}

// CopyTracker receives copy events, keyed by prompt id.
type CopyTracker interface {
	Track(key string, value any)
}

type Handler struct {
	store     Store
	catalog   Catalog
	listings  Listings
	events    EventTracker
	copies    CopyTracker
	metrics   *metrics.Metrics
	cfg       config.SearchConfig
	traceRate float64
}

// Option configures optional collaborators of a Handler.
type Option func(*Handler)

func WithListings(l Listings) Option {
	return func(h *Handler) { h.listings = l }
}

func WithEvents(t EventTracker) Option {
	return func(h *Handler) { h.events = t }
}

func WithCopyTracker(t CopyTracker) Option {
	return func(h *Handler) { h.copies = t }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithTraceSampleRate enables span logging for a fraction of searches.
func WithTraceSampleRate(rate float64) Option {
	return func(h *Handler) { h.traceRate = rate }
}

func New(store Store, catalog Catalog, cfg config.SearchConfig, opts ...Option) *Handler {
	h := &Handler{
		store:   store,
		catalog: catalog,
		cfg:     cfg,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// SearchHit is one ranked search result with display-ready segments.
type SearchHit struct {
	ID            string                   `json:"id"`
	Title         string                   `json:"title"`
	Body          string                   `json:"prompt_text"`
	Category      string                   `json:"category"`
	Tags          []string                 `json:"tags"`
	Copies        int                      `json:"copies"`
	Score         float64                  `json:"score"`
	TitleSegments []search.Segment         `json:"title_segments"`
	BodySegments  []search.Segment         `json:"body_segments"`
	Spans         map[string][]search.Span `json:"spans,omitempty"`
}

type SearchResponse struct {
	Query     string      `json:"query"`
	Category  string      `json:"category,omitempty"`
	TotalHits int         `json:"total_hits"`
	Results   []SearchHit `json:"results"`
	TookMs    float64     `json:"took_ms"`
}

type ListResponse struct {
	Prompts []*prompt.Prompt `json:"prompts"`
	Count   int              `json:"count"`
	Cached  bool             `json:"cached"`
}

// ListPrompts serves GET /api/v1/prompts.
func (h *Handler) ListPrompts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := prompt.ListFilter{
		Tag:      strings.ToLower(strings.TrimSpace(q.Get("tag"))),
		Category: strings.TrimSpace(q.Get("category")),
		Query:    strings.TrimSpace(q.Get("q")),
	}
	if filter.Category == search.AllCategories {
		filter.Category = ""
	}
	limit, err := h.parseLimit(q.Get("limit"), h.cfg.MaxResults, h.cfg.MaxResults)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	filter.Limit = limit

	load := func(ctx context.Context) ([]*prompt.Prompt, error) {
		return h.store.ListPublic(ctx, filter)
	}
	var (
		prompts []*prompt.Prompt
		cached  bool
	)
	if h.listings != nil {
		prompts, cached, err = h.listings.GetOrLoad(r.Context(), filter, load)
	} else {
		prompts, err = load(r.Context())
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ListResponse{Prompts: prompts, Count: len(prompts), Cached: cached})
}

// SearchPrompts serves GET /api/v1/prompts/search.
func (h *Handler) SearchPrompts(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q := r.URL.Query()
	query := truncateRunes(q.Get("q"), h.cfg.MaxQueryLength)
	category := strings.TrimSpace(q.Get("category"))
	limit, err := h.parseLimit(q.Get("limit"), h.cfg.DefaultLimit, h.cfg.MaxResults)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	requestID := middleware.GetRequestID(r.Context())
	ctx, trace := tracing.Start(r.Context(), "prompt.search", requestID, h.traceRate)
	trace.Set("query", query)
	defer trace.Finish()

	stage := trace.Stage("match")
	results, err := h.catalog.Search(ctx, query, category)
	h.observeStage("match", stage.End())
	if err != nil {
		h.countSearch("error")
		h.writeError(w, r, fmt.Errorf("searching prompts: %w", err))
		return
	}
	total := len(results)
	results = search.Limit(results, limit)

	stage = trace.Stage("highlight")
	hits := make([]SearchHit, len(results))
	for i, res := range results {
		hits[i] = h.toHit(res)
	}
	h.observeStage("highlight", stage.End())
	trace.Set("hits", total)

	switch {
	case search.IsBlank(query):
		h.countSearch("listing")
	case total == 0:
		h.countSearch("zero_result")
	default:
		h.countSearch("hit")
	}
	if h.metrics != nil {
		h.metrics.SearchResultsCount.Observe(float64(total))
	}

	took := time.Since(start)
	if h.events != nil {
		h.events.Track(analytics.SearchEvent{
			Type:      analytics.EventSearch,
			Query:     query,
			Category:  category,
			TotalHits: total,
			Returned:  len(hits),
			LatencyMs: took.Milliseconds(),
			Timestamp: time.Now().UTC(),
			RequestID: requestID,
		})
	}
	h.writeJSON(w, http.StatusOK, SearchResponse{
		Query:     query,
		Category:  category,
		TotalHits: total,
		Results:   hits,
		TookMs:    float64(took.Microseconds()) / 1000,
	})
}

// GetPrompt serves GET /api/v1/prompts/{id}. Private prompts are only
// visible to their owner.
func (h *Handler) GetPrompt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !p.IsPublic && !p.OwnedBy(callerID(r.Context())) {
		h.writeError(w, r, apperrors.NotFound(id))
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// CreatePrompt serves POST /api/v1/prompts. A verified bearer makes the
// caller the owner; anonymous submissions have none.
func (h *Handler) CreatePrompt(w http.ResponseWriter, r *http.Request) {
	var req prompt.CreateRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := validator.ValidateCreate(&req); err != nil {
		h.mutation("create", "invalid")
		h.writeError(w, r, err)
		return
	}
	owner := callerID(r.Context())
	p, err := h.store.Create(r.Context(), owner, &req)
	if err != nil {
		h.mutation("create", "error")
		h.writeError(w, r, err)
		return
	}
	h.mutation("create", "ok")
	h.catalog.Changed(r.Context(), "prompt_created", p.ID)
	h.trackPrompt(r.Context(), analytics.EventPromptCreated, p)
	h.writeJSON(w, http.StatusCreated, p)
}

// UpdatePrompt serves PUT /api/v1/prompts/{id}.
func (h *Handler) UpdatePrompt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req prompt.UpdateRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := validator.ValidateUpdate(&req); err != nil {
		h.mutation("update", "invalid")
		h.writeError(w, r, err)
		return
	}
	p, err := h.store.Update(r.Context(), id, callerID(r.Context()), &req)
	if err != nil {
		h.mutation("update", outcome(err))
		h.writeError(w, r, err)
		return
	}
	h.mutation("update", "ok")
	h.catalog.Changed(r.Context(), "prompt_updated", p.ID)
	h.writeJSON(w, http.StatusOK, p)
}

// DeletePrompt serves DELETE /api/v1/prompts/{id}.
func (h *Handler) DeletePrompt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.store.Delete(r.Context(), id, callerID(r.Context())); err != nil {
		h.mutation("delete", outcome(err))
		h.writeError(w, r, err)
		return
	}
	h.mutation("delete", "ok")
	h.catalog.Changed(r.Context(), "prompt_deleted", id)
	h.trackPrompt(r.Context(), analytics.EventPromptDeleted, &prompt.Prompt{ID: id})
	w.WriteHeader(http.StatusNoContent)
}

// CopyPrompt serves POST /api/v1/prompts/copy.
func (h *Handler) CopyPrompt(w http.ResponseWriter, r *http.Request) {
	var req prompt.CopyRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		h.writeError(w, r, &validator.ValidationError{Fields: map[string]string{"id": "required"}})
		return
	}
	copies, err := h.store.IncrementCopies(r.Context(), req.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if h.metrics != nil {
		h.metrics.PromptCopiesTotal.Inc()
	}
	if h.copies != nil {
		h.copies.Track(req.ID, analytics.PromptEvent{
			Type:      analytics.EventCopy,
			PromptID:  req.ID,
			UserID:    callerID(r.Context()),
			Timestamp: time.Now().UTC(),
			RequestID: middleware.GetRequestID(r.Context()),
		})
	}
	h.writeJSON(w, http.StatusOK, prompt.CopyResponse{ID: req.ID, Copies: copies})
}

// MyPrompts serves GET /api/v1/me/prompts.
func (h *Handler) MyPrompts(w http.ResponseWriter, r *http.Request) {
	owner := callerID(r.Context())
	if owner == "" {
		h.writeError(w, r, apperrors.Unauthorized("sign in required"))
		return
	}
	prompts, err := h.store.ListByOwner(r.Context(), owner)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ListResponse{Prompts: prompts, Count: len(prompts)})
}

// CacheInvalidate serves POST /api/v1/admin/cache/invalidate.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	h.catalog.Changed(r.Context(), "admin_invalidate", "")
	logger.FromContext(r.Context()).Info("catalog invalidated by admin")
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":     "invalidated",
		"generation": h.catalog.Generation(),
	})
}

// CacheStats serves GET /api/v1/admin/cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"generation": h.catalog.Generation(),
	}
	if h.listings != nil {
		hits, misses := h.listings.Stats()
		var rate float64
		if total := hits + misses; total > 0 {
			rate = float64(hits) / float64(total)
		}
		resp["hits"] = hits
		resp["misses"] = misses
		resp["hit_rate"] = rate
		resp["breaker"] = h.listings.BreakerState().String()
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) toHit(res search.MatchResult) SearchHit {
	rec := res.Record
	return SearchHit{
		ID:            rec.ID,
		Title:         rec.Title,
		Body:          rec.Body,
		Category:      rec.Category,
		Tags:          rec.Tags,
		Copies:        rec.Copies,
		Score:         res.Score,
		TitleSegments: search.Highlight(rec.Title, res.Spans[string(search.FieldTitle)], 0),
		BodySegments:  search.Highlight(rec.Body, res.Spans[string(search.FieldBody)], h.cfg.SnippetLength),
		Spans:         res.Spans,
	}
}

func (h *Handler) trackPrompt(ctx context.Context, typ analytics.EventType, p *prompt.Prompt) {
	if h.events == nil {
		return
	}
	h.events.Track(analytics.PromptEvent{
		Type:      typ,
		PromptID:  p.ID,
		Title:     p.Title,
		Category:  p.Category,
		UserID:    callerID(ctx),
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetRequestID(ctx),
	})
}

// parseLimit reads ?limit=, falling back to def and capping at ceiling.
func (h *Handler) parseLimit(raw string, def, ceiling int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, &validator.ValidationError{Fields: map[string]string{"limit": "must be a positive integer"}}
	}
	if ceiling > 0 && n > ceiling {
		n = ceiling
	}
	return n, nil
}

func (h *Handler) observeStage(stage string, d time.Duration) {
	if h.metrics != nil {
		h.metrics.SearchLatency.WithLabelValues(stage).Observe(d.Seconds())
	}
}

func (h *Handler) countSearch(resultType string) {
	if h.metrics != nil {
		h.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	}
}

func (h *Handler) mutation(op, result string) {
	if h.metrics != nil {
		h.metrics.PromptMutationsTotal.WithLabelValues(op, result).Inc()
	}
}

func outcome(err error) string {
	switch apperrors.HTTPStatusCode(err) {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusForbidden:
		return "forbidden"
	default:
		return "error"
	}
}

func callerID(ctx context.Context) string {
	if id, ok := token.FromContext(ctx); ok {
		return id.UserID
	}
	return ""
}

func truncateRunes(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.Invalid("invalid request body")
	}
	return nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validator.ValidationError
	if errors.As(err, &verr) {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": verr.Fields,
		})
		return
	}
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
	}
	h.writeJSON(w, status, map[string]string{"error": apperrors.PublicMessage(err)})
}
