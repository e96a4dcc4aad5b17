// Package client talks to the PromptVault REST API on behalf of the
// command-line tools. Requests carry the bearer token of the current
// session; idempotent reads are retried with backoff.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/prompt"
	prompthandler "github.com/Adithya-Monish-Kumar-K/promptvault/internal/prompt/handler"
	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/session"
	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/resilience"
)

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Message string            `json:"error"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (e *APIError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
	}
	parts := make([]string, 0, len(e.Fields))
	for k, v := range e.Fields {
		parts = append(parts, k+": "+v)
	}
	return fmt.Sprintf("api error %d: %s (%s)", e.Status, e.Message, strings.Join(parts, "; "))
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

type Client struct {
	baseURL string
	http    *http.Client
	session session.Accessor
	retry   resilience.RetryConfig
}

// New creates a client for baseURL. sess may be nil for anonymous use.
func New(baseURL string, sess session.Accessor) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		session: sess,
		retry: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
		},
	}
}

// ListPrompts returns the public listing.
func (c *Client) ListPrompts(ctx context.Context, filter prompt.ListFilter) ([]*prompt.Prompt, error) {
	q := url.Values{}
	setIf(q, "tag", filter.Tag)
	setIf(q, "category", filter.Category)
	setIf(q, "q", filter.Query)
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	var resp prompthandler.ListResponse
	if err := c.get(ctx, "/api/v1/prompts", q, &resp); err != nil {
		return nil, err
	}
	return resp.Prompts, nil
}

// Search runs the server-side fuzzy search.
func (c *Client) Search(ctx context.Context, query, category string, limit int) (*prompthandler.SearchResponse, error) {
	q := url.Values{}
	setIf(q, "q", query)
	setIf(q, "category", category)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp prompthandler.SearchResponse
	if err := c.get(ctx, "/api/v1/prompts/search", q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) GetPrompt(ctx context.Context, id string) (*prompt.Prompt, error) {
	var p prompt.Prompt
	if err := c.get(ctx, "/api/v1/prompts/"+url.PathEscape(id), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// MyPrompts lists the signed-in user's prompts.
func (c *Client) MyPrompts(ctx context.Context) ([]*prompt.Prompt, error) {
	var resp prompthandler.ListResponse
	if err := c.get(ctx, "/api/v1/me/prompts", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Prompts, nil
}

func (c *Client) CreatePrompt(ctx context.Context, req *prompt.CreateRequest) (*prompt.Prompt, error) {
	var p prompt.Prompt
	if err := c.do(ctx, http.MethodPost, "/api/v1/prompts", req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) UpdatePrompt(ctx context.Context, id string, req *prompt.UpdateRequest) (*prompt.Prompt, error) {
	var p prompt.Prompt
	if err := c.do(ctx, http.MethodPut, "/api/v1/prompts/"+url.PathEscape(id), req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) DeletePrompt(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/prompts/"+url.PathEscape(id), nil, nil)
}

// CopyPrompt records a copy and returns the new count.
func (c *Client) CopyPrompt(ctx context.Context, id string) (int, error) {
	var resp prompt.CopyResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/prompts/copy", prompt.CopyRequest{ID: id}, &resp); err != nil {
		return 0, err
	}
	return resp.Copies, nil
}

// JoinWaitlist adds email to the waitlist and reports whether it was new.
func (c *Client) JoinWaitlist(ctx context.Context, email string) (bool, error) {
	var resp struct {
		Added bool `json:"added"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/waitlist", map[string]string{"email": email}, &resp); err != nil {
		return false, err
	}
	return resp.Added, nil
}

// get retries on network errors and 5xx responses.
func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return resilience.Retry(ctx, "api GET "+path, c.retry, func() error {
		err := c.do(ctx, http.MethodGet, path, nil, out)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
			return resilience.Permanent(err)
		}
		return err
	})
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.session != nil {
		if tok := c.session.AccessToken(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
			if apiErr.Message == "" {
				apiErr.Message = http.StatusText(resp.StatusCode)
			}
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}
