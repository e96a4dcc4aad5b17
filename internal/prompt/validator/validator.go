// Package validator checks and normalises prompt submissions. It trims
// text, applies the default category, de-duplicates tags and reports
// per-field error details.
package validator

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/promptvault/internal/prompt"
)

const (
	maxTitleLength = 200
	maxBodyLength  = 20000
	maxTags        = 10
	maxTagLength   = 40
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		keys = append(keys, field)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, field := range keys {
		parts = append(parts, fmt.Sprintf("%s:%s", field, e.Fields[field]))
	}
	return strings.Join(parts, "; ")
}

// ValidateCreate normalises req in place and returns a ValidationError when
// any field is unacceptable.
func ValidateCreate(req *prompt.CreateRequest) error {
	errs := make(map[string]string)

	req.Title = strings.TrimSpace(req.Title)
	checkTitle(req.Title, errs)
	req.Body = strings.TrimSpace(req.Body)
	checkBody(req.Body, errs)

	req.Category = strings.TrimSpace(req.Category)
	if req.Category == "" {
		req.Category = prompt.DefaultCategory
	}
	checkCategory(req.Category, errs)

	req.Tags = normalizeTags(req.Tags)
	checkTags(req.Tags, errs)

	if req.IsPublic == nil {
		public := true
		req.IsPublic = &public
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// ValidateUpdate normalises the fields present in req and validates them.
// An update that changes nothing is rejected.
func ValidateUpdate(req *prompt.UpdateRequest) error {
	errs := make(map[string]string)
	if req.Empty() {
		errs["request"] = "update must change at least one field"
		return &ValidationError{Fields: errs}
	}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		req.Title = &title
		checkTitle(title, errs)
	}
	if req.Body != nil {
		body := strings.TrimSpace(*req.Body)
		req.Body = &body
		checkBody(body, errs)
	}
	if req.Category != nil {
		category := strings.TrimSpace(*req.Category)
		if category == "" {
			category = prompt.DefaultCategory
		}
		req.Category = &category
		checkCategory(category, errs)
	}
	if req.Tags != nil {
		tags := normalizeTags(*req.Tags)
		req.Tags = &tags
		checkTags(tags, errs)
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func checkTitle(title string, errs map[string]string) {
	if title == "" {
		errs["title"] = "title is required"
	} else if utf8.RuneCountInString(title) > maxTitleLength {
		errs["title"] = fmt.Sprintf("title must be at most %d characters", maxTitleLength)
	}
}

func checkBody(body string, errs map[string]string) {
	if body == "" {
		errs["prompt_text"] = "prompt text is required"
	} else if utf8.RuneCountInString(body) > maxBodyLength {
		errs["prompt_text"] = fmt.Sprintf("prompt text must be at most %d characters", maxBodyLength)
	}
}

func checkCategory(category string, errs map[string]string) {
	if !prompt.IsCategory(category) {
		errs["category"] = fmt.Sprintf("category must be one of %s", strings.Join(prompt.Categories, ", "))
	}
}

func checkTags(tags []string, errs map[string]string) {
	if len(tags) > maxTags {
		errs["tags"] = fmt.Sprintf("at most %d tags are allowed", maxTags)
		return
	}
	for _, tag := range tags {
		if utf8.RuneCountInString(tag) > maxTagLength {
			errs["tags"] = fmt.Sprintf("tag %q is longer than %d characters", tag, maxTagLength)
			return
		}
	}
}

// normalizeTags lower-cases and trims tags, dropping empties and repeats
// while keeping first-seen order.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
