package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/scio-helpdesk/server/logger"
	"github.com/scio-helpdesk/server/models"
	"github.com/scio-helpdesk/server/services"
)

// ChatController handles the chat, feedback, and conversation endpoints.
type ChatController struct {
	ragService services.RAGService
	store      *services.ConversationStore
	log        *logger.Logger
}

func NewChatController(ragService services.RAGService, store *services.ConversationStore, log *logger.Logger) *ChatController {
	return &ChatController{
		ragService: ragService,
		store:      store,
		log:        log.With("controller", "ChatController"),
	}
}

// SendMessage handles POST /api/v1/chat.
func (c *ChatController) SendMessage(ctx *gin.Context) {
	var req models.ChatRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	conversation, err := c.store.GetOrCreate(req.ConversationID)
	if err != nil {
		c.log.Error("Failed to resolve conversation", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve conversation"})
		return
	}

	history, err := c.conversationHistory(conversation.ID)
	if err != nil {
		c.log.Error("Failed to load history", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load conversation history"})
		return
	}

	if _, err := c.store.AddMessage(conversation.ID, models.RoleUser, req.Message, nil, false); err != nil {
		c.log.Error("Failed to save user message", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save message"})
		return
	}

	responseText, sources, isCritical, err := c.ragService.GenerateResponse(ctx.Request.Context(), req.Message, history, req.Model)
	if err != nil {
		c.log.Error("Failed to generate response", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate response"})
		return
	}

	assistantMessage, err := c.store.AddMessage(conversation.ID, models.RoleAssistant, responseText, sources, isCritical)
	if err != nil {
		c.log.Error("Failed to save assistant message", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save message"})
		return
	}

	c.finishTurn(ctx, conversation.ID, req.Message, len(history) == 0)

	ctx.JSON(http.StatusOK, models.ChatResponse{
		Message: models.ChatMessage{
			ID:         assistantMessage.ID,
			Role:       models.RoleAssistant,
			Content:    responseText,
			Timestamp:  assistantMessage.Timestamp,
			Sources:    sources,
			IsCritical: isCritical,
		},
		ConversationID: conversation.ID,
	})
}

// SendMessageStream handles POST /api/v1/chat/stream, relaying the answer
// as server-sent events. A client disconnect abandons the provider stream;
// the assistant turn is only persisted when the stream completes.
func (c *ChatController) SendMessageStream(ctx *gin.Context) {
	var req models.ChatRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	conversation, err := c.store.GetOrCreate(req.ConversationID)
	if err != nil {
		c.log.Error("Failed to resolve conversation", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve conversation"})
		return
	}

	history, err := c.conversationHistory(conversation.ID)
	if err != nil {
		c.log.Error("Failed to load history", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load conversation history"})
		return
	}

	if _, err := c.store.AddMessage(conversation.ID, models.RoleUser, req.Message, nil, false); err != nil {
		c.log.Error("Failed to save user message", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save message"})
		return
	}

	ctx.Writer.Header().Set("Content-Type", "text/event-stream")
	ctx.Writer.Header().Set("Cache-Control", "no-cache")
	ctx.Writer.Header().Set("Connection", "keep-alive")
	ctx.Writer.WriteHeader(http.StatusOK)

	flusher, _ := ctx.Writer.(http.Flusher)
	requestCtx := ctx.Request.Context()

	var fullResponse string
	onDelta := func(chunk string) error {
		if err := requestCtx.Err(); err != nil {
			return err
		}
		payload, err := json.Marshal(gin.H{"content": chunk})
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(ctx.Writer, "data: %s\n\n", payload); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		fullResponse += chunk
		return nil
	}

	sources, isCritical, err := c.ragService.GenerateResponseStream(requestCtx, req.Message, history, req.Model, onDelta)
	if err != nil {
		// Client gone or transport broken; nothing more to send.
		c.log.Warn("Stream aborted", "conversation_id", conversation.ID, "error", err)
		return
	}

	assistantMessage, err := c.store.AddMessage(conversation.ID, models.RoleAssistant, fullResponse, sources, isCritical)
	if err != nil {
		c.log.Error("Failed to save streamed assistant message", "error", err)
		return
	}

	c.finishTurn(ctx, conversation.ID, req.Message, len(history) == 0)

	done, _ := json.Marshal(gin.H{
		"done":            true,
		"conversation_id": conversation.ID,
		"message_id":      assistantMessage.ID,
	})
	fmt.Fprintf(ctx.Writer, "data: %s\n\n", done)
	if flusher != nil {
		flusher.Flush()
	}
}

// SubmitFeedback handles POST /api/v1/chat/feedback. A thumbs-up on an
// assistant turn feeds the question/answer pair back into the knowledge
// base.
func (c *ChatController) SubmitFeedback(ctx *gin.Context) {
	var req models.FeedbackRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	message, err := c.store.GetMessage(req.MessageID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
			return
		}
		c.log.Error("Failed to load message", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load message"})
		return
	}

	if err := c.store.SetFeedback(req.MessageID, req.Feedback); err != nil {
		c.log.Error("Failed to record feedback", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record feedback"})
		return
	}

	if req.Feedback == models.FeedbackThumbsUp && message.Role == models.RoleAssistant {
		question, err := c.store.PrecedingUserMessage(message.ConversationID, message.Timestamp)
		switch {
		case err == nil:
			if err := c.ragService.LearnQA(ctx.Request.Context(), question.Content, message.Content); err != nil {
				c.log.Warn("Could not learn from feedback", "message_id", message.ID, "error", err)
			}
		case errors.Is(err, services.ErrNotFound):
			// First turn has no preceding question; nothing to learn.
		default:
			c.log.Warn("Could not look up preceding question", "error", err)
		}
	}

	ctx.JSON(http.StatusOK, gin.H{"success": true, "message": "Feedback recorded"})
}

// ListConversations handles GET /api/v1/chat/conversations.
func (c *ChatController) ListConversations(ctx *gin.Context) {
	limit, err := strconv.Atoi(ctx.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	offset, err := strconv.Atoi(ctx.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	conversations, total, err := c.store.List(limit, offset)
	if err != nil {
		c.log.Error("Failed to list conversations", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list conversations"})
		return
	}
	ctx.JSON(http.StatusOK, models.ConversationListResponse{
		Conversations: conversations,
		Total:         total,
	})
}

// GetConversation handles GET /api/v1/chat/conversations/:id.
func (c *ChatController) GetConversation(ctx *gin.Context) {
	detail, err := c.store.Get(ctx.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
			return
		}
		c.log.Error("Failed to load conversation", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load conversation"})
		return
	}
	ctx.JSON(http.StatusOK, detail)
}

// DeleteConversation handles DELETE /api/v1/chat/conversations/:id.
func (c *ChatController) DeleteConversation(ctx *gin.Context) {
	if err := c.store.Delete(ctx.Param("id")); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
			return
		}
		c.log.Error("Failed to delete conversation", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete conversation"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true, "message": "Conversation deleted"})
}

// PinConversation handles PATCH /api/v1/chat/conversations/:id/pin.
func (c *ChatController) PinConversation(ctx *gin.Context) {
	var req models.PinRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if err := c.store.SetPinned(ctx.Param("id"), req.Pinned); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
			return
		}
		c.log.Error("Failed to update pin state", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update pin state"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true})
}

// conversationHistory loads prior turns in the LLM-facing shape.
func (c *ChatController) conversationHistory(conversationID string) ([]models.HistoryMessage, error) {
	messages, err := c.store.Messages(conversationID)
	if err != nil {
		return nil, err
	}
	history := make([]models.HistoryMessage, 0, len(messages))
	for _, msg := range messages {
		history = append(history, models.HistoryMessage{Role: msg.Role, Content: msg.Content})
	}
	return history, nil
}

// finishTurn generates a title on the first exchange and bumps the
// conversation's activity timestamp. Failures here never reach the caller.
func (c *ChatController) finishTurn(ctx *gin.Context, conversationID, userMessage string, firstTurn bool) {
	if firstTurn {
		title := c.ragService.GenerateTitle(ctx.Request.Context(), userMessage)
		if err := c.store.SetTitle(conversationID, title); err != nil {
			c.log.Warn("Could not set conversation title", "error", err)
		}
	}
	if err := c.store.Touch(conversationID); err != nil {
		c.log.Warn("Could not update conversation timestamp", "error", err)
	}
}
