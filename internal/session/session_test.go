package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_SignInPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "promptvault", "session.yaml")
	s, err := Load(path)
	require.NoError(t, err)
	_, ok := s.Current()
	assert.False(t, ok)

	var events []Event
	s.Subscribe(func(e Event, id Identity) { events = append(events, e) })

	id := Identity{UserID: "user-1", Email: "ada@example.com", ExpiresAt: time.Now().Add(time.Hour).UTC().Truncate(time.Second)}
	require.NoError(t, s.SignIn(id, "tok"))
	assert.Equal(t, "tok", s.AccessToken())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reloaded, err := Load(path)
	require.NoError(t, err)
	got, ok := reloaded.Current()
	require.True(t, ok)
	assert.Equal(t, "ada@example.com", got.Email)
	assert.True(t, id.ExpiresAt.Equal(got.ExpiresAt))

	require.NoError(t, s.SignOut())
	require.NoError(t, s.SignOut())
	assert.Empty(t, s.AccessToken())
	assert.Equal(t, []Event{SignedIn, SignedOut}, events)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestSession_Expired(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)
	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }

	require.NoError(t, s.SignIn(Identity{UserID: "u", ExpiresAt: now.Add(time.Minute)}, "tok"))
	assert.Equal(t, "tok", s.AccessToken())

	now = now.Add(2 * time.Minute)
	assert.Empty(t, s.AccessToken())
	_, ok := s.Current()
	assert.False(t, ok)
}

func TestSession_RejectsEmptyToken(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)
	assert.Error(t, s.SignIn(Identity{UserID: "u"}, ""))
}

func TestLoad_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, os.WriteFile(path, []byte("user_id: [unterminated"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}
