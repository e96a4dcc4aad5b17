// Package prompt defines the prompt entity shared by the store, the listing
// cache, the search catalog and the HTTP handlers.
package prompt

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/search"
)

// DefaultCategory is assigned when a prompt is created without one.
const DefaultCategory = "General"

// Categories lists the accepted prompt categories in display order.
var Categories = []string{
	"Writing",
	"Coding",
	"Business",
	"Creative",
	"Learning",
	"Productivity",
	"Marketing",
	DefaultCategory,
}

// IsCategory reports whether name is one of Categories.
func IsCategory(name string) bool {
	for _, c := range Categories {
		if c == name {
			return true
		}
	}
	return false
}

// Prompt is a stored prompt. UserID is empty for prompts submitted without
// signing in; nobody can edit those.
type Prompt struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	Title     string    `json:"title"`
	Body      string    `json:"prompt_text"`
	Category  string    `json:"category"`
	Tags      []string  `json:"tags"`
	IsPublic  bool      `json:"is_public"`
	Copies    int       `json:"copies"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OwnedBy reports whether userID may modify the prompt.
func (p *Prompt) OwnedBy(userID string) bool {
	return userID != "" && p.UserID == userID
}

// Record converts the prompt into a search record.
func (p *Prompt) Record() *search.Record {
	return &search.Record{
		ID:       p.ID,
		Title:    p.Title,
		Body:     p.Body,
		Category: p.Category,
		Tags:     p.Tags,
		Copies:   p.Copies,
	}
}

// Records converts prompts into search records, keeping their order.
func Records(prompts []*Prompt) []*search.Record {
	out := make([]*search.Record, len(prompts))
	for i, p := range prompts {
		out[i] = p.Record()
	}
	return out
}

// CreateRequest is the JSON body accepted when submitting a prompt.
// IsPublic defaults to true when omitted.
type CreateRequest struct {
	Title    string   `json:"title"`
	Body     string   `json:"prompt_text"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
	IsPublic *bool    `json:"is_public,omitempty"`
}

// UpdateRequest is the JSON body accepted when editing a prompt. Nil fields
// are left unchanged.
type UpdateRequest struct {
	Title    *string   `json:"title,omitempty"`
	Body     *string   `json:"prompt_text,omitempty"`
	Category *string   `json:"category,omitempty"`
	Tags     *[]string `json:"tags,omitempty"`
	IsPublic *bool     `json:"is_public,omitempty"`
}

// Empty reports whether the update changes nothing.
func (r *UpdateRequest) Empty() bool {
	return r.Title == nil && r.Body == nil && r.Category == nil && r.Tags == nil && r.IsPublic == nil
}

// ListFilter narrows the public listing. Query is a plain substring match
// on title and body, unlike the fuzzy search endpoint.
type ListFilter struct {
	Tag      string `json:"tag,omitempty"`
	Category string `json:"category,omitempty"`
	Query    string `json:"q,omitempty"`
	Limit    int    `json:"limit"`
}

// CopyRequest is the JSON body of a copy notification.
type CopyRequest struct {
	ID string `json:"id"`
}

// CopyResponse reports the new copy count.
type CopyResponse struct {
	ID     string `json:"id"`
	Copies int    `json:"copies"`
}
