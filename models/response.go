package models

import "time"

// ChatResponse is returned by POST /chat.
type ChatResponse struct {
	Message        ChatMessage `json:"message"`
	ConversationID string      `json:"conversation_id"`
}

// ConversationSummary is one entry in the conversation list.
type ConversationSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	IsPinned     bool      `json:"is_pinned"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// ConversationListResponse is returned by GET /chat/conversations.
type ConversationListResponse struct {
	Conversations []ConversationSummary `json:"conversations"`
	Total         int                   `json:"total"`
}

// ConversationDetail is a conversation with its full message history.
type ConversationDetail struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	IsPinned  bool          `json:"is_pinned"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Messages  []ChatMessage `json:"messages"`
}

// KnowledgeStats is returned by GET /knowledge/stats.
type KnowledgeStats struct {
	TotalDocuments int        `json:"total_documents"`
	IngestionState string     `json:"ingestion_state"`
	LastIngestion  *time.Time `json:"last_ingestion,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
	CollectionName string     `json:"collection_name"`
}

// IngestResponse acknowledges an ingestion request.
type IngestResponse struct {
	Success            bool   `json:"success"`
	Message            string `json:"message"`
	DocumentsProcessed int    `json:"documents_processed"`
	Error              string `json:"error,omitempty"`
}

// HealthResponse reports reachability of the external boundaries.
type HealthResponse struct {
	Status          string `json:"status"`
	Version         string `json:"version"`
	OllamaConnected bool   `json:"ollama_connected"`
	ChromaConnected bool   `json:"chromadb_connected"`
}

// ModelInfo describes one available model.
type ModelInfo struct {
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	ModifiedAt string `json:"modified_at,omitempty"`
	IsCustom   bool   `json:"is_custom"`
}

// ModelListResponse is returned by the model listing endpoints.
type ModelListResponse struct {
	Models []ModelInfo `json:"models"`
}

// ModelResponse is returned by model create/delete operations.
type ModelResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ModelName string `json:"model_name,omitempty"`
	Error     string `json:"error,omitempty"`
}
