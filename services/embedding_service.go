package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/scio-helpdesk/server/logger"
	"github.com/scio-helpdesk/server/models"
)

// EmbeddingService maps text to fixed-length vectors. The dimensionality is
// fixed per provider instance and must match the vector collection.
type EmbeddingService interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

type ollamaEmbeddingService struct {
	httpClient *http.Client
	host       string
	model      string
	log        *logger.Logger
}

// NewOllamaEmbeddingService creates an embedding provider backed by the
// Ollama embeddings API.
func NewOllamaEmbeddingService(client *http.Client, host, model string, log *logger.Logger) EmbeddingService {
	return &ollamaEmbeddingService{
		httpClient: client,
		host:       host,
		model:      model,
		log:        log.With("service", "EmbeddingService"),
	}
}

func (s *ollamaEmbeddingService) EmbedText(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(models.OllamaEmbedRequest{
		Model:  s.model,
		Prompt: text,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ollama embed request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.host+"/api/embeddings", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call ollama embedding api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama embedding api returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var embedResp models.OllamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("failed to decode ollama embedding response: %w", err)
	}
	return embedResp.Embedding, nil
}

func (s *ollamaEmbeddingService) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for i, text := range texts {
		vector, err := s.EmbedText(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d of %d: %w", i+1, len(texts), err)
		}
		vectors = append(vectors, vector)
	}
	return vectors, nil
}
