// Package middleware provides the HTTP middleware specific to the
// PromptVault API: bearer identity, admin keys, CORS and per-caller rate
// limiting.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/auth/token"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/metrics"
)

// AdminKeyHeader carries admin API keys.
const AdminKeyHeader = "X-API-Key"

type contextKey string

const apiKeyInfoKey contextKey = "api_key_info"

// TokenVerifier verifies bearer credentials.
type TokenVerifier interface {
	Verify(raw string) (*token.Identity, error)
}

// KeyValidator validates admin API keys.
type KeyValidator interface {
	Validate(ctx context.Context, rawKey string) (*apikey.KeyInfo, error)
}

// Identity verifies an optional bearer token. Requests without one pass
// through anonymously; a present but invalid token is rejected so callers
// learn their session expired instead of silently posting anonymously.
// Admin keys sent as bearers are left for AdminKey.
func Identity(verifier TokenVerifier, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := token.FromHeader(r.Header.Get("Authorization"))
			if raw == "" || strings.HasPrefix(raw, apikey.KeyPrefix) {
				next.ServeHTTP(w, r)
				return
			}
			id, err := verifier.Verify(raw)
			if err != nil {
				authFailure(m, "bearer", "invalid")
				logger.FromContext(r.Context()).Info("bearer rejected", "error", err)
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			ctx := logger.WithUserID(token.WithIdentity(r.Context(), id), id.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireUser rejects requests that Identity did not authenticate.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := token.FromContext(r.Context()); !ok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, "sign in required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// keyRejections maps validator errors to the metric reason and response.
var keyRejections = []struct {
	err     error
	reason  string
	message string
}{
	{apikey.ErrInvalidKey, "invalid", "invalid api key"},
	{apikey.ErrExpiredKey, "expired", "expired api key"},
}

// AdminKey validates an admin API key from the X-API-Key header or an
// Authorization bearer carrying a key with the admin prefix.
func AdminKey(validator KeyValidator, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extractAPIKey(r)
			if key == "" {
				authFailure(m, "api_key", "missing")
				writeError(w, http.StatusUnauthorized, "missing api key")
				return
			}
			info, err := validator.Validate(r.Context(), key)
			if err != nil {
				rejectKey(w, r, m, err)
				return
			}
			ctx := context.WithValue(r.Context(), apiKeyInfoKey, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func rejectKey(w http.ResponseWriter, r *http.Request, m *metrics.Metrics, err error) {
	for _, rej := range keyRejections {
		if errors.Is(err, rej.err) {
			authFailure(m, "api_key", rej.reason)
			writeError(w, http.StatusUnauthorized, rej.message)
			return
		}
	}
	logger.FromContext(r.Context()).Error("api key validation failed", "error", err)
	writeError(w, http.StatusInternalServerError, "authentication error")
}

// GetKeyInfo retrieves the validated KeyInfo from the request context.
func GetKeyInfo(ctx context.Context) *apikey.KeyInfo {
	info, _ := ctx.Value(apiKeyInfoKey).(*apikey.KeyInfo)
	return info
}

func extractAPIKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(AdminKeyHeader)); key != "" {
		return key
	}
	if raw := token.FromHeader(r.Header.Get("Authorization")); strings.HasPrefix(raw, apikey.KeyPrefix) {
		return raw
	}
	return ""
}

func authFailure(m *metrics.Metrics, kind, reason string) {
	if m != nil {
		m.AuthFailuresTotal.WithLabelValues(kind, reason).Inc()
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
