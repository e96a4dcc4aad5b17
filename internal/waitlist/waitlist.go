// Package waitlist records email addresses of people waiting for access.
package waitlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/postgres"
)

const maxEmailLength = 254

// ErrInvalidEmail is returned for addresses that do not parse.
var ErrInvalidEmail = errors.New("invalid email address")

// Normalize validates email and returns its canonical lower-case form.
// Display names ("Ada <ada@example.com>") are rejected.
func Normalize(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" || len(email) > maxEmailLength {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Name != "" || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(addr.Address), nil
}

// Repository persists waitlist entries.
type Repository interface {
	Add(ctx context.Context, email string) (bool, error)
}

type Store struct {
	db *postgres.Client
}

func NewStore(db *postgres.Client) *Store {
	return &Store{db: db}
}

// Add inserts email and reports whether it was new. Repeated sign-ups are
// not an error.
func (s *Store) Add(ctx context.Context, email string) (bool, error) {
	res, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO waitlist (email) VALUES ($1) ON CONFLICT (email) DO NOTHING`, email)
	if err != nil {
		return false, fmt.Errorf("adding waitlist entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("adding waitlist entry: %w", err)
	}
	return n > 0, nil
}

type Handler struct {
	repo   Repository
	logger *slog.Logger
}

func NewHandler(repo Repository) *Handler {
	return &Handler{
		repo:   repo,
		logger: slog.Default().With("component", "waitlist"),
	}
}

type joinRequest struct {
	Email string `json:"email"`
}

// Join serves POST /api/v1/waitlist.
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	r.Body = http.MaxBytesReader(w, r.Body, 4096)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	email, err := Normalize(req.Email)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": map[string]string{"email": "must be a valid email address"},
		})
		return
	}
	added, err := h.repo.Add(r.Context(), email)
	if err != nil {
		logger.FromContext(r.Context()).Error("waitlist insert failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if added {
		h.logger.Info("waitlist signup")
	}
	writeJSON(w, http.StatusOK, map[string]any{"email": email, "added": added})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
