package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/prompt"
	prompthandler "github.com/Adithya-Monish-Kumar-K/promptvault/internal/prompt/handler"
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/session"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/resilience"
)

type staticSession struct{ token string }

func (s staticSession) AccessToken() string { return s.token }
func (s staticSession) Current() (session.Identity, bool) {
	return session.Identity{UserID: "alice"}, s.token != ""
}

func newTestClient(t *testing.T, h http.Handler, sess session.Accessor) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := New(srv.URL+"/", sess)
	c.retry.InitialDelay = time.Millisecond
	c.retry.MaxDelay = 5 * time.Millisecond
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestListPrompts_EncodesFilter(t *testing.T) {
	var got *http.Request
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		writeJSON(w, http.StatusOK, prompthandler.ListResponse{
			Prompts: []*prompt.Prompt{{ID: "1", Title: "SQL Query Optimizer"}},
			Count:   1,
		})
	}), nil)

	prompts, err := c.ListPrompts(context.Background(), prompt.ListFilter{Tag: "sql", Category: "Coding", Limit: 5})
	require.NoError(t, err)
	require.Len(t, prompts, 1)
	assert.Equal(t, "SQL Query Optimizer", prompts[0].Title)

	assert.Equal(t, "/api/v1/prompts", got.URL.Path)
	assert.Equal(t, "sql", got.URL.Query().Get("tag"))
	assert.Equal(t, "Coding", got.URL.Query().Get("category"))
	assert.Equal(t, "5", got.URL.Query().Get("limit"))
	assert.False(t, got.URL.Query().Has("q"))
	assert.Empty(t, got.Header.Get("Authorization"))
}

func TestDo_AttachesBearer(t *testing.T) {
	var auth string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, prompthandler.ListResponse{})
	}), staticSession{token: "tok-123"})

	_, err := c.MyPrompts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-123", auth)
}

func TestGet_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "warming up"})
			return
		}
		writeJSON(w, http.StatusOK, prompthandler.SearchResponse{Query: "sql", TotalHits: 1})
	}), nil)

	resp, err := c.Search(context.Background(), "sql", "", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.TotalHits)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGet_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "prompt not found"})
	}), nil)

	_, err := c.GetPrompt(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusNotFound))
	assert.Equal(t, int32(1), calls.Load())
}

func TestCreatePrompt_ValidationError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": map[string]string{"title": "is required"},
		})
	}), nil)

	_, err := c.CreatePrompt(context.Background(), &prompt.CreateRequest{Body: "x"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "is required", apiErr.Fields["title"])
	assert.Contains(t, apiErr.Error(), "title: is required")
}

func TestDeletePrompt_NoContent(t *testing.T) {
	var path string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}), staticSession{token: "t"})

	require.NoError(t, c.DeletePrompt(context.Background(), "abc"))
	assert.Equal(t, "/api/v1/prompts/abc", path)
}

func TestCopyPrompt(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req prompt.CopyRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		writeJSON(w, http.StatusOK, prompt.CopyResponse{ID: req.ID, Copies: 42})
	}), nil)

	copies, err := c.CopyPrompt(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 42, copies)
}

func TestJoinWaitlist(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/waitlist", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{"email": "a@b.co", "added": true})
	}), nil)

	added, err := c.JoinWaitlist(context.Background(), "a@b.co")
	require.NoError(t, err)
	assert.True(t, added)
}

func TestAPIError_PlainTextBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}), nil)

	err := c.DeletePrompt(context.Background(), "x")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "nope", apiErr.Message)
}

func TestIdentity_SignIn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/token", r.URL.Path)
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "anon", r.Header.Get("apikey"))
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "hunter2" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "jwt",
			"expires_in":   3600,
			"user":         map[string]string{"id": "u-1", "email": body["email"]},
		})
	}))
	defer srv.Close()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	id := NewIdentity(srv.URL, "anon")
	id.now = func() time.Time { return now }

	ident, tok, err := id.SignIn(context.Background(), "a@b.co", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "jwt", tok)
	assert.Equal(t, "u-1", ident.UserID)
	assert.Equal(t, "a@b.co", ident.Email)
	assert.Equal(t, now.Add(time.Hour), ident.ExpiresAt)

	_, _, err = id.SignIn(context.Background(), "a@b.co", "wrong")
	assert.ErrorIs(t, err, ErrBadCredentials)
}

func TestIdentity_SignInTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	id := NewIdentity(srv.URL, "")
	id.timeout = 20 * time.Millisecond

	_, _, err := id.SignIn(context.Background(), "a@b.co", "pw")
	assert.ErrorIs(t, err, resilience.ErrTimeout)
}

func newSignUpServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/v1/signup", r.URL.Path)
		assert.Equal(t, "anon", r.Header.Get("apikey"))
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		switch body["email"] {
		case "taken@b.co":
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"code": 422, "msg": "User already registered"})
		case "confirm@b.co":
			writeJSON(w, http.StatusOK, map[string]any{
				"id":                   "u-2",
				"email":                body["email"],
				"confirmation_sent_at": "2026-01-01T00:00:00Z",
			})
		default:
			writeJSON(w, http.StatusOK, map[string]any{
				"access_token": "jwt",
				"expires_in":   60,
				"user":         map[string]string{"id": "u-1", "email": body["email"]},
			})
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestIdentity_SignUp(t *testing.T) {
	var hits atomic.Int32
	srv := newSignUpServer(t, &hits)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	id := NewIdentity(srv.URL, "anon")
	id.now = func() time.Time { return now }

	t.Run("session", func(t *testing.T) {
		res, err := id.SignUp(context.Background(), "new@b.co", "secret1")
		require.NoError(t, err)
		assert.False(t, res.ConfirmationPending())
		assert.Equal(t, "jwt", res.AccessToken)
		assert.Equal(t, "u-1", res.Identity.UserID)
		assert.Equal(t, "new@b.co", res.Identity.Email)
		assert.Equal(t, now.Add(time.Minute), res.Identity.ExpiresAt)
	})

	t.Run("confirmation pending", func(t *testing.T) {
		res, err := id.SignUp(context.Background(), "confirm@b.co", "secret1")
		require.NoError(t, err)
		assert.True(t, res.ConfirmationPending())
		assert.Empty(t, res.AccessToken)
		assert.Equal(t, "u-2", res.Identity.UserID)
		assert.Equal(t, "confirm@b.co", res.Identity.Email)
		assert.True(t, res.Identity.ExpiresAt.IsZero())
	})

	t.Run("already registered", func(t *testing.T) {
		_, err := id.SignUp(context.Background(), "taken@b.co", "secret1")
		assert.ErrorIs(t, err, ErrSignUpRejected)
		assert.ErrorContains(t, err, "User already registered")
	})
}

func TestIdentity_SignUpValidatesLocally(t *testing.T) {
	var hits atomic.Int32
	srv := newSignUpServer(t, &hits)
	id := NewIdentity(srv.URL, "anon")

	_, err := id.SignUp(context.Background(), "a@b.co", "12345")
	assert.ErrorIs(t, err, ErrWeakPassword)

	_, err = id.SignUp(context.Background(), "  ", "secret1")
	assert.ErrorIs(t, err, ErrEmailRequired)

	assert.Zero(t, hits.Load())

	_, err = id.SignUp(context.Background(), "a@b.co", "123456")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestIdentity_SignUpTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	id := NewIdentity(srv.URL, "")
	id.timeout = 20 * time.Millisecond

	_, err := id.SignUp(context.Background(), "a@b.co", "secret1")
	assert.ErrorIs(t, err, resilience.ErrTimeout)
}
