package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/auth/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/auth/token"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/config"
)

func whoami(w http.ResponseWriter, r *http.Request) {
	if id, ok := token.FromContext(r.Context()); ok {
		_, _ = w.Write([]byte(id.UserID))
		return
	}
	_, _ = w.Write([]byte("anonymous"))
}

func testVerifier(t *testing.T) (*token.Verifier, *token.Signer) {
	t.Helper()
	cfg := config.AuthConfig{JWTSecret: "test-secret-test-secret-test-secret", Leeway: time.Second}
	v, err := token.NewVerifier(cfg)
	require.NoError(t, err)
	return v, token.NewSigner(cfg)
}

func TestIdentity(t *testing.T) {
	verifier, signer := testVerifier(t)
	h := Identity(verifier, nil)(http.HandlerFunc(whoami))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "anonymous", rec.Body.String())

	raw, err := signer.Sign("user-1", "u@example.com", time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "user-1", rec.Body.String())

	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireUser(t *testing.T) {
	h := RequireUser(http.HandlerFunc(whoami))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(token.WithIdentity(req.Context(), &token.Identity{UserID: "u"}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

type fakeKeys map[string]error

func (f fakeKeys) Validate(ctx context.Context, raw string) (*apikey.KeyInfo, error) {
	err, ok := f[raw]
	if !ok {
		return nil, apikey.ErrInvalidKey
	}
	if err != nil {
		return nil, err
	}
	return &apikey.KeyInfo{ID: "k1", Name: "ops"}, nil
}

func TestAdminKey(t *testing.T) {
	keys := fakeKeys{
		"pv_admin_good":    nil,
		"pv_admin_expired": apikey.ErrExpiredKey,
		"pv_admin_broken":  errors.New("db down"),
	}
	var seen *apikey.KeyInfo
	h := AdminKey(keys, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetKeyInfo(r.Context())
	}))

	cases := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"header", AdminKeyHeader, "pv_admin_good", http.StatusOK},
		{"bearer", "Authorization", "Bearer pv_admin_good", http.StatusOK},
		{"bearer without prefix", "Authorization", "Bearer eyJhbGciOi", http.StatusUnauthorized},
		{"unknown", AdminKeyHeader, "pv_admin_nope", http.StatusUnauthorized},
		{"expired", AdminKeyHeader, "pv_admin_expired", http.StatusUnauthorized},
		{"backend error", AdminKeyHeader, "pv_admin_broken", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/cache/stats", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
	require.NotNil(t, seen)
	assert.Equal(t, "ops", seen.Name)
}

func TestRateLimit(t *testing.T) {
	limiter := ratelimit.NewMemory(time.Minute)
	defer limiter.Close()
	h := RateLimit(limiter, 2)(http.HandlerFunc(whoami))

	send := func(remote, user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/prompts", nil)
		req.RemoteAddr = remote
		if user != "" {
			req = req.WithContext(token.WithIdentity(req.Context(), &token.Identity{UserID: user}))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:1234", "").Code)
	assert.Equal(t, http.StatusOK, send("10.0.0.1:5678", "").Code)
	rec := send("10.0.0.1:9999", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, send("10.0.0.2:1234", "").Code)
	assert.Equal(t, http.StatusOK, send("10.0.0.1:1234", "alice").Code)
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string, int) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("redis down")
}

func TestRateLimit_FailsOpen(t *testing.T) {
	h := RateLimit(brokenLimiter{}, 1)(http.HandlerFunc(whoami))
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/prompts", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestCORS(t *testing.T) {
	h := CORS(NewCORSConfig([]string{"https://promptvault.dev", "https://*.preview.promptvault.dev"}))(http.HandlerFunc(whoami))

	send := func(method, origin string, preflight bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/api/v1/prompts", nil)
		req.Header.Set("Origin", origin)
		if preflight {
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := send(http.MethodOptions, "https://promptvault.dev", true)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://promptvault.dev", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), AdminKeyHeader)

	rec = send(http.MethodGet, "https://pr-12.preview.promptvault.dev", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://pr-12.preview.promptvault.dev", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "X-Request-ID, Retry-After", rec.Header().Get("Access-Control-Expose-Headers"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Methods"))

	for _, origin := range []string{"https://evil.example", "http://pr-12.preview.promptvault.dev", "https://.preview.promptvault.dev"} {
		rec = send(http.MethodGet, origin, false)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"), origin)
		assert.Equal(t, "Origin", rec.Header().Get("Vary"))
	}
}
