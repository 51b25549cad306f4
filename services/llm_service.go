package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/scio-helpdesk/server/logger"
	"github.com/scio-helpdesk/server/models"
)

// LLMService is the text-completion boundary. Implementations exist for the
// local Ollama backend and the Gemini cloud backend; they are interchangeable
// from the orchestrator's point of view.
type LLMService interface {
	// Generate produces a complete answer for the user message given the
	// retrieved context and prior turns.
	Generate(ctx context.Context, model, userMessage, ragContext string, history []models.HistoryMessage) (string, error)
	// GenerateStream relays answer fragments to onDelta as they arrive.
	// A provider failure mid-stream degrades to an inline error token so
	// the transport stays intact.
	GenerateStream(ctx context.Context, model, userMessage, ragContext string, history []models.HistoryMessage, onDelta func(string) error) error
	// GenerateTitle returns a short conversation title. It never fails:
	// on any error it falls back to a default.
	GenerateTitle(ctx context.Context, model, firstMessage string) string
	IsConnected(ctx context.Context) bool
}

// OllamaService is the local backend's full surface: text completion plus
// model inventory.
type OllamaService interface {
	LLMService
	// ListModels returns all locally available model tags.
	ListModels(ctx context.Context) ([]models.OllamaModelTag, error)
}

type ollamaLLMService struct {
	httpClient *http.Client
	host       string
	log        *logger.Logger
}

// NewOllamaLLMService creates the local LLM backend client.
func NewOllamaLLMService(client *http.Client, host string, log *logger.Logger) OllamaService {
	return &ollamaLLMService{
		httpClient: client,
		host:       host,
		log:        log.With("service", "OllamaLLMService"),
	}
}

func buildChatMessages(userMessage, ragContext string, history []models.HistoryMessage) []models.OllamaChatMessage {
	messages := make([]models.OllamaChatMessage, 0, len(history)+2)
	messages = append(messages, models.OllamaChatMessage{
		Role:    models.RoleSystem,
		Content: BuildSystemPrompt(ragContext),
	})
	for _, msg := range history {
		messages = append(messages, models.OllamaChatMessage{Role: msg.Role, Content: msg.Content})
	}
	messages = append(messages, models.OllamaChatMessage{Role: models.RoleUser, Content: userMessage})
	return messages
}

func (s *ollamaLLMService) Generate(ctx context.Context, model, userMessage, ragContext string, history []models.HistoryMessage) (string, error) {
	req := models.OllamaChatRequest{
		Model:    model,
		Messages: buildChatMessages(userMessage, ragContext, history),
		Stream:   false,
		Options: &models.OllamaOptions{
			Temperature: 0.7,
			TopP:        0.9,
			NumPredict:  1024,
		},
	}

	var resp models.OllamaChatResponse
	if err := s.postChat(ctx, req, &resp); err != nil {
		return "", fmt.Errorf("failed to generate response: %w", err)
	}
	return resp.Message.Content, nil
}

func (s *ollamaLLMService) GenerateStream(ctx context.Context, model, userMessage, ragContext string, history []models.HistoryMessage, onDelta func(string) error) error {
	req := models.OllamaChatRequest{
		Model:    model,
		Messages: buildChatMessages(userMessage, ragContext, history),
		Stream:   true,
		Options: &models.OllamaOptions{
			Temperature: 0.7,
			TopP:        0.9,
			NumPredict:  1024,
		},
	}

	body, err := s.openChatStream(ctx, req)
	if err != nil {
		s.log.Error("Ollama streaming failed", "error", err)
		return onDelta(fmt.Sprintf("Error: Failed to generate response - %v", err))
	}
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var frame models.OllamaChatResponse
		if err := json.Unmarshal(line, &frame); err != nil {
			s.log.Warn("Skipping malformed stream frame", "error", err)
			continue
		}
		if frame.Message.Content != "" {
			if err := onDelta(frame.Message.Content); err != nil {
				// Caller gone; abandon the provider stream.
				return err
			}
		}
		if frame.Done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Error("Ollama stream interrupted", "error", err)
		return onDelta(fmt.Sprintf("Error: Failed to generate response - %v", err))
	}
	return nil
}

func (s *ollamaLLMService) GenerateTitle(ctx context.Context, model, firstMessage string) string {
	req := models.OllamaChatRequest{
		Model: model,
		Messages: []models.OllamaChatMessage{
			{Role: models.RoleSystem, Content: titlePrompt},
			{Role: models.RoleUser, Content: firstMessage},
		},
		Stream:  false,
		Options: &models.OllamaOptions{Temperature: 0.3, NumPredict: 20},
	}

	var resp models.OllamaChatResponse
	if err := s.postChat(ctx, req, &resp); err != nil {
		s.log.Warn("Title generation failed", "error", err)
		return defaultTitle
	}
	return cleanTitle(resp.Message.Content)
}

func (s *ollamaLLMService) IsConnected(ctx context.Context) bool {
	_, err := s.listTags(ctx)
	return err == nil
}

// ListModels returns all locally available models.
func (s *ollamaLLMService) ListModels(ctx context.Context) ([]models.OllamaModelTag, error) {
	tags, err := s.listTags(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list ollama models: %w", err)
	}
	return tags.Models, nil
}

func (s *ollamaLLMService) postChat(ctx context.Context, req models.OllamaChatRequest, out *models.OllamaChatResponse) error {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal chat request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.host+"/api/chat", bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to call ollama chat api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ollama chat api returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode chat response: %w", err)
	}
	return nil
}

func (s *ollamaLLMService) openChatStream(ctx context.Context, req models.OllamaChatRequest) (io.ReadCloser, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.host+"/api/chat", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call ollama chat api: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("ollama chat api returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}
	return resp.Body, nil
}

func (s *ollamaLLMService) listTags(ctx context.Context) (*models.OllamaTagsResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.host+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama tags api returned status %d", resp.StatusCode)
	}
	var tags models.OllamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags response: %w", err)
	}
	return &tags, nil
}

// cleanTitle strips quotes, trims, and caps the title at 50 characters.
func cleanTitle(title string) string {
	title = strings.TrimSpace(title)
	title = strings.ReplaceAll(title, `"`, "")
	title = strings.ReplaceAll(title, "'", "")
	if len(title) > 50 {
		title = title[:50]
	}
	if title == "" {
		return defaultTitle
	}
	return title
}
