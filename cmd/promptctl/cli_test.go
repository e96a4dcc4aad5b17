package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/explore"
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/prompt"
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/search"
)

func execute(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	return executeWithInput(t, srv, "", args...)
}

func executeWithInput(t *testing.T, srv *httptest.Server, input string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(input))
	full := append([]string{"--api-url", srv.URL, "--session", filepath.Join(t.TempDir(), "session.yaml")}, args...)
	rootCmd.SetArgs(full)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestListCommand(t *testing.T) {
	var gotTag string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTag = r.URL.Query().Get("tag")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"prompts": []*prompt.Prompt{
				{ID: "p1", Title: "SQL Query Optimizer", Category: "Coding", Tags: []string{"sql", "database"}, Copies: 31, IsPublic: true},
			},
			"count": 1,
		})
	}))
	defer srv.Close()

	out, err := execute(t, srv, "list", "--tag", "sql")
	require.NoError(t, err)
	assert.Equal(t, "sql", gotTag)
	assert.Contains(t, out, "SQL Query Optimizer")
	assert.Contains(t, out, "sql,database")
}

func TestWhoami_SignedOut(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	out, err := execute(t, srv, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Not signed in.")
}

func TestMine_RequiresSession(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := execute(t, srv, "mine")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not signed in")
}

func TestCopyCommand(t *testing.T) {
	var copied string
	old := clipboardWriteAll
	clipboardWriteAll = func(s string) error {
		copied = s
		return nil
	}
	defer func() { clipboardWriteAll = old }()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/prompts/p1":
			_ = json.NewEncoder(w).Encode(prompt.Prompt{ID: "p1", Title: "Regex Builder", Body: "Write a regex."})
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/prompts/copy":
			_ = json.NewEncoder(w).Encode(prompt.CopyResponse{ID: "p1", Copies: 7})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	out, err := execute(t, srv, "copy", "p1")
	require.NoError(t, err)
	assert.Equal(t, "Write a regex.", copied)
	assert.Contains(t, out, `Copied "Regex Builder" (7 copies)`)
}

func TestReadBody(t *testing.T) {
	body, err := readBody(strings.NewReader("  hello\n"), "-")
	require.NoError(t, err)
	assert.Equal(t, "hello", body)

	_, err = readBody(strings.NewReader("   "), "")
	assert.EqualError(t, err, "prompt text is empty")
}

func TestPrintPrompts(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printPrompts(&buf, nil))
	assert.Equal(t, "No prompts.\n", buf.String())

	buf.Reset()
	require.NoError(t, printPrompts(&buf, []*prompt.Prompt{{ID: "x", Title: "Draft", Category: "General"}}))
	assert.Contains(t, buf.String(), "Draft (private)")
}

func TestSignupCommand(t *testing.T) {
	idp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/signup", r.URL.Path)
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["email"] == "confirm@b.co" {
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "u-2", "email": body["email"]})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "jwt",
			"expires_in":   3600,
			"user":         map[string]string{"id": "u-1", "email": body["email"]},
		})
	}))
	defer idp.Close()
	apiSrv := httptest.NewServer(http.NotFoundHandler())
	defer apiSrv.Close()
	t.Setenv("PV_AUTH_IDENTITY_URL", idp.URL)
	t.Setenv("PV_PASSWORD", "secret1")

	out, err := execute(t, apiSrv, "signup", "--email", "confirm@b.co")
	require.NoError(t, err)
	assert.Contains(t, out, "Check your email to confirm confirm@b.co")

	out, err = execute(t, apiSrv, "signup", "--email", "new@b.co")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as new@b.co.")
}

func TestSignupCommand_ShortPassword(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	t.Setenv("PV_PASSWORD", "abc")

	_, err := execute(t, srv, "signup", "--email", "a@b.co")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 6 characters")
}

func explorePrompts() []*prompt.Prompt {
	return []*prompt.Prompt{
		{ID: "p1", Title: "SQL Query Optimizer", Body: "Analyze the following SQL query.", Category: "Coding", Tags: []string{"sql"}, IsPublic: true},
		{ID: "p2", Title: "Cold Email That Gets Replies", Body: "Write a brief cold email.", Category: "Business", Tags: []string{"email"}, IsPublic: true},
	}
}

// lockedBuffer is written by the debounce timer and read by the test.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestPlainExplore_CoalescesBurst(t *testing.T) {
	st := explore.NewState(search.DefaultOptions(), 40)
	st.SetPrompts(explorePrompts())
	var out bytes.Buffer

	err := runPlainExplore(strings.NewReader("cold\nema\nsql\n"), &out, st, time.Hour, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out.String(), "> "))
	assert.Contains(t, out.String(), "> sql\n")
	assert.Contains(t, out.String(), "p1")
	assert.NotContains(t, out.String(), "Cold Email")
}

func TestPlainExplore_PrintsAfterPause(t *testing.T) {
	st := explore.NewState(search.DefaultOptions(), 40)
	st.SetPrompts(explorePrompts())
	pr, pw := io.Pipe()
	out := &lockedBuffer{}

	done := make(chan error, 1)
	go func() { done <- runPlainExplore(pr, out, st, 10*time.Millisecond, 0) }()

	_, err := io.WriteString(pw, "cold email\n")
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "> cold email\n")
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, out.String(), "p2")

	_, err = io.WriteString(pw, "zzzzqqq\n")
	require.NoError(t, err)
	require.NoError(t, pw.Close())
	require.NoError(t, <-done)
	assert.Contains(t, out.String(), "> zzzzqqq\nNo prompts match.")
	assert.Equal(t, 2, strings.Count(out.String(), "> "))
}

func TestPlainExplore_ClampsQueryLength(t *testing.T) {
	st := explore.NewState(search.DefaultOptions(), 40)
	st.SetPrompts(explorePrompts())
	var out bytes.Buffer

	require.NoError(t, runPlainExplore(strings.NewReader("sqlxyz\n"), &out, st, time.Hour, 3))
	assert.Contains(t, out.String(), "> sql\n")
}

func TestExploreCommand_Plain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"prompts": explorePrompts(), "count": 2})
	}))
	defer srv.Close()
	t.Cleanup(func() {
		explorePlain = false
		exploreCategory = search.AllCategories
	})

	out, err := executeWithInput(t, srv, "sql\n", "explore", "--plain", "--category", "Business")
	require.NoError(t, err)
	assert.Contains(t, out, "> sql\nNo prompts match.")

	out, err = executeWithInput(t, srv, "sql\n", "explore", "--plain", "--category", search.AllCategories)
	require.NoError(t, err)
	assert.Contains(t, out, "p1")
}
