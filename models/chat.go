package models

import "time"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Feedback values.
const (
	FeedbackThumbsUp   = "thumbs_up"
	FeedbackThumbsDown = "thumbs_down"
)

// HistoryMessage is one prior turn handed to the LLM for context.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatMessage is the API representation of a stored message.
type ChatMessage struct {
	ID         string           `json:"id"`
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	Timestamp  time.Time        `json:"timestamp"`
	Sources    []SourceDocument `json:"sources,omitempty"`
	Feedback   string           `json:"feedback,omitempty"`
	IsCritical bool             `json:"is_critical"`
}
