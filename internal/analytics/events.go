// Package analytics defines the usage events emitted by the API, the
// collectors that ship them to Kafka and the aggregator that turns the
// stream into the stats served by the analytics service.
package analytics

import "time"

type EventType string

const (
	EventSearch        EventType = "search"
	EventCopy          EventType = "copy"
	EventPromptCreated EventType = "prompt_created"
	EventPromptDeleted EventType = "prompt_deleted"
)

// SearchEvent is emitted for every fuzzy search served by the API.
type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Category  string    `json:"category,omitempty"`
	TotalHits int       `json:"total_hits"`
	Returned  int       `json:"returned"`
	LatencyMs int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// PromptEvent is emitted when a prompt is copied, created or deleted.
type PromptEvent struct {
	Type      EventType `json:"type"`
	PromptID  string    `json:"prompt_id"`
	Title     string    `json:"title,omitempty"`
	Category  string    `json:"category,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// envelope is decoded first to learn which event a message carries.
type envelope struct {
	Type EventType `json:"type"`
}
