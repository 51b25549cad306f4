package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/scio-helpdesk/server/logger"
	"github.com/scio-helpdesk/server/models"
)

// ErrNotFound reports an unknown conversation or message id.
var ErrNotFound = errors.New("not found")

// ConversationStore persists conversations and their turns.
type ConversationStore struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConversationStore(db *gorm.DB, log *logger.Logger) *ConversationStore {
	return &ConversationStore{
		db:  db,
		log: log.With("service", "ConversationStore"),
	}
}

// GetOrCreate fetches the conversation by id, creating a fresh one when the
// id is empty or unknown.
func (s *ConversationStore) GetOrCreate(id string) (*models.Conversation, error) {
	if id != "" {
		var conversation models.Conversation
		err := s.db.First(&conversation, "id = ?", id).Error
		if err == nil {
			return &conversation, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to load conversation: %w", err)
		}
	}

	conversation := models.Conversation{
		ID:    uuid.New().String(),
		Title: "New Conversation",
	}
	if err := s.db.Create(&conversation).Error; err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return &conversation, nil
}

// List returns conversation summaries, pinned first, each group ordered by
// most recent activity.
func (s *ConversationStore) List(limit, offset int) ([]models.ConversationSummary, int, error) {
	var total int64
	if err := s.db.Model(&models.Conversation{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count conversations: %w", err)
	}

	var conversations []models.Conversation
	if err := s.db.
		Order("is_pinned DESC, updated_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&conversations).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list conversations: %w", err)
	}

	summaries := make([]models.ConversationSummary, 0, len(conversations))
	for _, conversation := range conversations {
		var count int64
		if err := s.db.Model(&models.Message{}).
			Where("conversation_id = ?", conversation.ID).
			Count(&count).Error; err != nil {
			return nil, 0, fmt.Errorf("failed to count messages: %w", err)
		}
		summaries = append(summaries, models.ConversationSummary{
			ID:           conversation.ID,
			Title:        conversation.Title,
			IsPinned:     conversation.IsPinned,
			CreatedAt:    conversation.CreatedAt,
			UpdatedAt:    conversation.UpdatedAt,
			MessageCount: int(count),
		})
	}
	return summaries, int(total), nil
}

// Get returns a conversation with its full message history in chronological
// order.
func (s *ConversationStore) Get(id string) (*models.ConversationDetail, error) {
	var conversation models.Conversation
	if err := s.db.First(&conversation, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	messages, err := s.Messages(id)
	if err != nil {
		return nil, err
	}

	chatMessages := make([]models.ChatMessage, 0, len(messages))
	for _, msg := range messages {
		chatMessages = append(chatMessages, toChatMessage(msg, s.log))
	}
	return &models.ConversationDetail{
		ID:        conversation.ID,
		Title:     conversation.Title,
		IsPinned:  conversation.IsPinned,
		CreatedAt: conversation.CreatedAt,
		UpdatedAt: conversation.UpdatedAt,
		Messages:  chatMessages,
	}, nil
}

// Messages returns a conversation's raw message rows, oldest first.
func (s *ConversationStore) Messages(conversationID string) ([]models.Message, error) {
	var messages []models.Message
	if err := s.db.
		Where("conversation_id = ?", conversationID).
		Order("timestamp ASC").
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	return messages, nil
}

// Delete removes a conversation and its messages.
func (s *ConversationStore) Delete(id string) error {
	result := s.db.Delete(&models.Conversation{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete conversation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	// Cascade is declared on the relation but SQLite does not always
	// enforce it, so clean up explicitly.
	if err := s.db.Delete(&models.Message{}, "conversation_id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete conversation messages: %w", err)
	}
	return nil
}

// SetPinned pins or unpins a conversation.
func (s *ConversationStore) SetPinned(id string, pinned bool) error {
	result := s.db.Model(&models.Conversation{}).
		Where("id = ?", id).
		Update("is_pinned", pinned)
	if result.Error != nil {
		return fmt.Errorf("failed to update pin state: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetTitle updates a conversation's title.
func (s *ConversationStore) SetTitle(id, title string) error {
	return s.db.Model(&models.Conversation{}).
		Where("id = ?", id).
		Update("title", title).Error
}

// Touch bumps the conversation's updated_at to now.
func (s *ConversationStore) Touch(id string) error {
	return s.db.Model(&models.Conversation{}).
		Where("id = ?", id).
		Update("updated_at", time.Now()).Error
}

// AddMessage appends a turn to a conversation. Sources, when present, are
// serialized into the row.
func (s *ConversationStore) AddMessage(conversationID, role, content string, sources []models.SourceDocument, isCritical bool) (*models.Message, error) {
	message := models.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Timestamp:      time.Now(),
		IsCritical:     isCritical,
	}
	if len(sources) > 0 {
		data, err := json.Marshal(sources)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize sources: %w", err)
		}
		encoded := string(data)
		message.SourcesJSON = &encoded
	}
	if err := s.db.Create(&message).Error; err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}
	return &message, nil
}

// GetMessage fetches one message row.
func (s *ConversationStore) GetMessage(id string) (*models.Message, error) {
	var message models.Message
	if err := s.db.First(&message, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load message: %w", err)
	}
	return &message, nil
}

// SetFeedback records user feedback on a message. Feedback is the only
// mutable column after insert.
func (s *ConversationStore) SetFeedback(id, feedback string) error {
	result := s.db.Model(&models.Message{}).
		Where("id = ?", id).
		Update("feedback", feedback)
	if result.Error != nil {
		return fmt.Errorf("failed to record feedback: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// PrecedingUserMessage returns the latest user turn before the given time
// in the same conversation, or ErrNotFound.
func (s *ConversationStore) PrecedingUserMessage(conversationID string, before time.Time) (*models.Message, error) {
	var message models.Message
	err := s.db.
		Where("conversation_id = ? AND role = ? AND timestamp < ?", conversationID, models.RoleUser, before).
		Order("timestamp DESC").
		First(&message).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find preceding user message: %w", err)
	}
	return &message, nil
}

// toChatMessage converts a row into its API shape, tolerating malformed
// serialized sources.
func toChatMessage(msg models.Message, log *logger.Logger) models.ChatMessage {
	chatMessage := models.ChatMessage{
		ID:         msg.ID,
		Role:       msg.Role,
		Content:    msg.Content,
		Timestamp:  msg.Timestamp,
		IsCritical: msg.IsCritical,
	}
	if msg.Feedback != nil {
		chatMessage.Feedback = *msg.Feedback
	}
	if msg.SourcesJSON != nil && *msg.SourcesJSON != "" {
		var sources []models.SourceDocument
		if err := json.Unmarshal([]byte(*msg.SourcesJSON), &sources); err != nil {
			log.Warn("Could not decode message sources", "message_id", msg.ID, "error", err)
		} else {
			chatMessage.Sources = sources
		}
	}
	return chatMessage
}
