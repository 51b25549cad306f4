package models

import "time"

// Conversation is the GORM row for a chat conversation.
type Conversation struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Title     string    `gorm:"size:255;default:New Conversation" json:"title"`
	IsPinned  bool      `gorm:"default:false" json:"is_pinned"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Messages []Message `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"-"`
}

// Message is the GORM row for a single conversation turn. Rows are immutable
// after insert except for the Feedback column.
type Message struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	ConversationID string    `gorm:"size:36;index;not null" json:"conversation_id"`
	Role           string    `gorm:"size:20;not null" json:"role"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	Timestamp      time.Time `gorm:"index" json:"timestamp"`
	Feedback       *string   `gorm:"size:20" json:"feedback,omitempty"`
	SourcesJSON    *string   `gorm:"type:text" json:"-"`
	IsCritical     bool      `gorm:"default:false" json:"is_critical"`
}
