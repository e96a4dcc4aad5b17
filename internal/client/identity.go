package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/session"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/resilience"
)

// DefaultSignInTimeout bounds one sign-in or sign-up round trip.
const DefaultSignInTimeout = 15 * time.Second

// MinPasswordLength is the shortest password SignUp accepts.
const MinPasswordLength = 6

var (
	// ErrBadCredentials is returned when the identity provider rejects the
	// email and password.
	ErrBadCredentials = errors.New("invalid email or password")
	ErrEmailRequired  = errors.New("email is required")
	ErrWeakPassword   = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	// ErrSignUpRejected wraps the provider's reason for refusing a new
	// account, such as an address that is already registered.
	ErrSignUpRejected = errors.New("sign-up rejected")
)

// Identity signs users up and in against a GoTrue-compatible identity
// provider.
type Identity struct {
	baseURL string
	anonKey string
	http    *http.Client
	timeout time.Duration
	now     func() time.Time
}

func NewIdentity(baseURL, anonKey string) *Identity {
	return &Identity{
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		http:    &http.Client{},
		timeout: DefaultSignInTimeout,
		now:     time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	User        struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// SignIn exchanges email and password for an access token.
func (i *Identity) SignIn(ctx context.Context, email, password string) (session.Identity, string, error) {
	var tr tokenResponse
	err := resilience.WithTimeout(ctx, i.timeout, "identity sign-in", func(ctx context.Context) error {
		status, err := i.post(ctx, "/auth/v1/token?grant_type=password", email, password, &tr)
		switch {
		case status == http.StatusBadRequest || status == http.StatusUnauthorized:
			return ErrBadCredentials
		case err != nil:
			return err
		case tr.AccessToken == "" || tr.User.ID == "":
			return errors.New("identity provider returned no token")
		}
		return nil
	})
	if err != nil {
		return session.Identity{}, "", err
	}
	return i.identity(tr.User.ID, tr.User.Email, tr.ExpiresIn), tr.AccessToken, nil
}

// SignUpResult describes a new account. AccessToken is empty when the
// provider holds the account until the email address is confirmed.
type SignUpResult struct {
	Identity    session.Identity
	AccessToken string
}

// ConfirmationPending reports whether the account still needs its email
// confirmed before it can sign in.
func (r SignUpResult) ConfirmationPending() bool {
	return r.AccessToken == ""
}

type signUpResponse struct {
	tokenResponse
	ID    string `json:"id"`
	Email string `json:"email"`
}

// SignUp registers a new account. Providers that confirm email addresses
// first answer with the user and no session.
func (i *Identity) SignUp(ctx context.Context, email, password string) (SignUpResult, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return SignUpResult{}, ErrEmailRequired
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return SignUpResult{}, ErrWeakPassword
	}

	var sr signUpResponse
	err := resilience.WithTimeout(ctx, i.timeout, "identity sign-up", func(ctx context.Context) error {
		status, err := i.post(ctx, "/auth/v1/signup", email, password, &sr)
		var pe *providerError
		if (status == http.StatusBadRequest || status == http.StatusUnprocessableEntity) && errors.As(err, &pe) {
			return fmt.Errorf("%w: %s", ErrSignUpRejected, pe.message())
		}
		return err
	})
	if err != nil {
		return SignUpResult{}, err
	}

	if sr.AccessToken != "" {
		if sr.User.ID == "" {
			return SignUpResult{}, errors.New("identity provider returned no user")
		}
		return SignUpResult{
			Identity:    i.identity(sr.User.ID, sr.User.Email, sr.ExpiresIn),
			AccessToken: sr.AccessToken,
		}, nil
	}
	userID, userEmail := sr.ID, sr.Email
	if userID == "" {
		userID, userEmail = sr.User.ID, sr.User.Email
	}
	if userEmail == "" {
		userEmail = email
	}
	return SignUpResult{Identity: session.Identity{UserID: userID, Email: userEmail}}, nil
}

func (i *Identity) identity(userID, email string, expiresIn int) session.Identity {
	id := session.Identity{UserID: userID, Email: email}
	if expiresIn > 0 {
		id.ExpiresAt = i.now().Add(time.Duration(expiresIn) * time.Second).UTC()
	}
	return id
}

// providerError is a non-200 answer from the identity provider.
type providerError struct {
	status int
	body   string
}

func (e *providerError) Error() string {
	return fmt.Sprintf("identity provider returned %d: %s", e.status, e.body)
}

// message picks the human-readable part of a GoTrue error body.
func (e *providerError) message() string {
	var body struct {
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
		Error            string `json:"error"`
	}
	if json.Unmarshal([]byte(e.body), &body) == nil {
		for _, m := range []string{body.Msg, body.Message, body.ErrorDescription, body.Error} {
			if m != "" {
				return m
			}
		}
	}
	if e.body == "" {
		return http.StatusText(e.status)
	}
	return e.body
}

// post sends email and password as JSON to path and decodes a 200 answer
// into out. The status code is returned alongside any error.
func (i *Identity) post(ctx context.Context, path, email, password string, out any) (int, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("building identity request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if i.anonKey != "" {
		req.Header.Set("apikey", i.anonKey)
	}

	resp, err := i.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("identity request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, &providerError{status: resp.StatusCode, body: strings.TrimSpace(string(data))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decoding identity response: %w", err)
	}
	return resp.StatusCode, nil
}
