// Package session holds the signed-in identity of the command-line client.
// The session is created in main, persisted as YAML and handed to the API
// client and the explore UI through the Accessor interface.
package session

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Identity describes the signed-in user.
type Identity struct {
	UserID    string    `yaml:"user_id"`
	Email     string    `yaml:"email"`
	ExpiresAt time.Time `yaml:"expires_at"`
}

// Event is delivered to listeners when the session changes.
type Event int

const (
	SignedIn Event = iota
	SignedOut
)

func (e Event) String() string {
	if e == SignedIn {
		return "signed_in"
	}
	return "signed_out"
}

// Listener observes sign-in and sign-out.
type Listener func(Event, Identity)

// Accessor is the read side of a session.
type Accessor interface {
	// AccessToken returns the bearer token, or "" when signed out or
	// expired.
	AccessToken() string
	Current() (Identity, bool)
}

type stored struct {
	Identity    `yaml:",inline"`
	AccessToken string `yaml:"access_token"`
}

type Session struct {
	mu        sync.RWMutex
	path      string
	state     *stored
	listeners []Listener
	now       func() time.Time
	logger    *slog.Logger
}

// DefaultPath returns ~/.config/promptvault/session.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	return filepath.Join(home, ".config", "promptvault", "session.yaml"), nil
}

// Load reads the session stored at path. A missing file yields a
// signed-out session. An empty path keeps the session in memory only.
func Load(path string) (*Session, error) {
	s := &Session{
		path:   path,
		now:    time.Now,
		logger: slog.Default().With("component", "session"),
	}
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading session %s: %w", path, err)
	}
	var st stored
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parsing session %s: %w", path, err)
	}
	if st.AccessToken != "" {
		s.state = &st
	}
	return s, nil
}

// Subscribe registers l for future sign-in and sign-out events.
func (s *Session) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// SignIn stores the identity and token and notifies listeners.
func (s *Session) SignIn(id Identity, accessToken string) error {
	if accessToken == "" {
		return errors.New("access token is empty")
	}
	st := &stored{Identity: id, AccessToken: accessToken}
	if err := s.persist(st); err != nil {
		return err
	}
	s.mu.Lock()
	s.state = st
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	s.logger.Debug("signed in", "user_id", id.UserID)
	for _, l := range listeners {
		l(SignedIn, id)
	}
	return nil
}

// SignOut forgets the session. Signing out twice is not an error.
func (s *Session) SignOut() error {
	if s.path != "" {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("removing session %s: %w", s.path, err)
		}
	}
	s.mu.Lock()
	prev := s.state
	s.state = nil
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	if prev == nil {
		return nil
	}
	for _, l := range listeners {
		l(SignedOut, prev.Identity)
	}
	return nil
}

func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.validLocked() {
		return ""
	}
	return s.state.AccessToken
}

func (s *Session) Current() (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.validLocked() {
		return Identity{}, false
	}
	return s.state.Identity, true
}

func (s *Session) validLocked() bool {
	if s.state == nil {
		return false
	}
	return s.state.ExpiresAt.IsZero() || s.now().Before(s.state.ExpiresAt)
}

func (s *Session) persist(st *stored) error {
	if s.path == "" {
		return nil
	}
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("writing session %s: %w", s.path, err)
	}
	return nil
}
