package services

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/scio-helpdesk/server/logger"
	"github.com/scio-helpdesk/server/models"
)

type geminiLLMService struct {
	client *genai.Client
	log    *logger.Logger
}

// NewGeminiLLMService creates the cloud LLM backend client.
func NewGeminiLLMService(ctx context.Context, apiKey string, log *logger.Logger) (LLMService, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &geminiLLMService{
		client: client,
		log:    log.With("service", "GeminiLLMService"),
	}, nil
}

// buildGeminiPrompt flattens the system prompt, history, and user message
// into a single prompt, since the generate API takes one content block here.
func buildGeminiPrompt(userMessage, ragContext string, history []models.HistoryMessage) string {
	var sb strings.Builder
	sb.WriteString(BuildSystemPrompt(ragContext))
	sb.WriteString("\n\n")
	for _, msg := range history {
		role := "Assistant"
		if msg.Role == models.RoleUser {
			role = "User"
		}
		sb.WriteString(fmt.Sprintf("%s: %s\n\n", role, msg.Content))
	}
	sb.WriteString(fmt.Sprintf("User: %s\n\nAssistant:", userMessage))
	return sb.String()
}

func (s *geminiLLMService) Generate(ctx context.Context, model, userMessage, ragContext string, history []models.HistoryMessage) (string, error) {
	result, err := s.client.Models.GenerateContent(ctx, model,
		genai.Text(buildGeminiPrompt(userMessage, ragContext, history)),
		&genai.GenerateContentConfig{
			Temperature:     genai.Ptr[float32](0.7),
			TopP:            genai.Ptr[float32](0.9),
			MaxOutputTokens: 1024,
		},
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate response: %w", err)
	}
	return result.Text(), nil
}

func (s *geminiLLMService) GenerateStream(ctx context.Context, model, userMessage, ragContext string, history []models.HistoryMessage, onDelta func(string) error) error {
	stream := s.client.Models.GenerateContentStream(ctx, model,
		genai.Text(buildGeminiPrompt(userMessage, ragContext, history)),
		&genai.GenerateContentConfig{
			Temperature:     genai.Ptr[float32](0.7),
			TopP:            genai.Ptr[float32](0.9),
			MaxOutputTokens: 1024,
		},
	)

	for chunk, err := range stream {
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Error("Gemini streaming failed", "error", err)
			return onDelta(fmt.Sprintf("Error: Failed to generate response - %v", err))
		}
		if text := chunk.Text(); text != "" {
			if err := onDelta(text); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *geminiLLMService) GenerateTitle(ctx context.Context, model, firstMessage string) string {
	prompt := fmt.Sprintf("%s\n\nUser message: %s", titlePrompt, firstMessage)
	result, err := s.client.Models.GenerateContent(ctx, model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			Temperature:     genai.Ptr[float32](0.3),
			MaxOutputTokens: 20,
		},
	)
	if err != nil {
		s.log.Warn("Title generation failed", "error", err)
		return defaultTitle
	}
	return cleanTitle(result.Text())
}

func (s *geminiLLMService) IsConnected(ctx context.Context) bool {
	_, err := s.client.Models.List(ctx, &genai.ListModelsConfig{PageSize: 1})
	return err == nil
}
