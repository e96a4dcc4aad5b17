// Package handler implements the API endpoints that are not about prompt
// records themselves: the analytics proxy, admin key management and the
// server-rendered explore page.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/search"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/logger"
)

// KeyManager creates, lists and revokes admin API keys.
type KeyManager interface {
	CreateKey(ctx context.Context, name string, rateLimit int, expiresAt *time.Time) (string, error)
	ListKeys(ctx context.Context) ([]apikey.KeyInfo, error)
	RevokeKey(ctx context.Context, rawKey string) error
}

// Searcher runs the fuzzy pipeline for the explore page.
type Searcher interface {
	Search(ctx context.Context, query, category string) ([]search.MatchResult, error)
}

// Config holds the explore page limits and the analytics service URL.
type Config struct {
	AnalyticsURL  string
	ExploreLimit  int
	SnippetLength int
	Categories    []string
}

type Handler struct {
	analyticsProxy *httputil.ReverseProxy
	keys           KeyManager
	searcher       Searcher
	cfg            Config
	logger         *slog.Logger
}

// New creates the handler. It fails when the analytics URL does not parse.
func New(cfg Config, keys KeyManager, searcher Searcher) (*Handler, error) {
	h := &Handler{
		keys:     keys,
		searcher: searcher,
		cfg:      cfg,
		logger:   slog.Default().With("component", "api-handler"),
	}
	if cfg.AnalyticsURL != "" {
		proxy, err := newProxy(cfg.AnalyticsURL)
		if err != nil {
			return nil, err
		}
		h.analyticsProxy = proxy
	}
	return h, nil
}

func newProxy(target string) (*httputil.ReverseProxy, error) {
	u, err := url.Parse(target)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.New("analytics url must be absolute, got " + target)
	}
	proxy := httputil.NewSingleHostReverseProxy(u)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.FromContext(r.Context()).Error("analytics proxy failed", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "analytics service unavailable"})
	}
	return proxy, nil
}

// ProxyAnalytics forwards analytics requests to the analytics service.
func (h *Handler) ProxyAnalytics(w http.ResponseWriter, r *http.Request) {
	if h.analyticsProxy == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "analytics is not configured"})
		return
	}
	r.Header.Del("Authorization")
	r.Header.Del("X-API-Key")
	h.analyticsProxy.ServeHTTP(w, r)
}

// CreateAPIKey creates a new admin key and returns the raw key once.
func (h *Handler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		RateLimit int    `json:"rate_limit"`
		ExpiresIn string `json:"expires_in,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	if req.RateLimit <= 0 {
		req.RateLimit = 100
	}

	var expiresAt *time.Time
	if req.ExpiresIn != "" {
		d, err := time.ParseDuration(req.ExpiresIn)
		if err != nil || d <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid expires_in duration"})
			return
		}
		t := time.Now().Add(d)
		expiresAt = &t
	}

	key, err := h.keys.CreateKey(r.Context(), req.Name, req.RateLimit, expiresAt)
	if err != nil {
		h.logger.Error("failed to create api key", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create api key"})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"api_key": key,
		"name":    req.Name,
		"message": "store this key securely, it cannot be retrieved again",
	})
}

// ListAPIKeys returns all active keys without their hashes.
func (h *Handler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keys.ListKeys(r.Context())
	if err != nil {
		h.logger.Error("failed to list api keys", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list api keys"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"keys":  keys,
		"count": len(keys),
	})
}

// RevokeAPIKey deactivates the key given in the request body.
func (h *Handler) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key string `json:"api_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "api_key is required"})
		return
	}
	err := h.keys.RevokeKey(r.Context(), req.Key)
	switch {
	case errors.Is(err, apikey.ErrInvalidKey):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "api key not found"})
	case err != nil:
		h.logger.Error("failed to revoke api key", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to revoke api key"})
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
