package models

// ChatRequest is the body of POST /chat and /chat/stream.
type ChatRequest struct {
	Message        string `json:"message" binding:"required,min=1,max=4000"`
	ConversationID string `json:"conversation_id,omitempty"`
	Model          string `json:"model,omitempty"`
}

// FeedbackRequest is the body of POST /chat/feedback.
type FeedbackRequest struct {
	MessageID string `json:"message_id" binding:"required"`
	Feedback  string `json:"feedback" binding:"required,oneof=thumbs_up thumbs_down"`
}

// IngestRequest is the body of the ingestion endpoints.
type IngestRequest struct {
	ForceReingest bool `json:"force_reingest"`
}

// PinRequest is the body of PATCH /chat/conversations/:id/pin.
type PinRequest struct {
	Pinned bool `json:"pinned"`
}

// CreateModelRequest is the body of POST /models.
type CreateModelRequest struct {
	Name         string  `json:"name" binding:"required,min=1,max=50"`
	BaseModel    string  `json:"base_model,omitempty"`
	CustomPrompt string  `json:"custom_prompt,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
	TopP         float64 `json:"top_p,omitempty"`
	NumCtx       int     `json:"num_ctx,omitempty"`
}
