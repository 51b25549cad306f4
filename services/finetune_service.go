package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/scio-helpdesk/server/logger"
	"github.com/scio-helpdesk/server/models"
)

// customModelPrefix marks models created by this service.
const customModelPrefix = "scio"

// defaultFineTunePrompt is baked into custom models that don't supply their
// own system prompt.
const defaultFineTunePrompt = `You are SCIO, an expert IT Helpdesk Assistant specialized in technical support.

## Your Expertise:
- Computer hardware troubleshooting and maintenance
- Operating systems (Windows, Linux, macOS)
- Networking and connectivity issues
- Software installation and configuration
- Error code interpretation
- Security and data protection
- IT best practices

## Response Guidelines:
1. Be concise and professional
2. Provide step-by-step solutions when applicable
3. Explain technical concepts in simple terms
4. Always prioritize data safety
5. Recommend consulting IT professionals for complex hardware issues

## Important Rules:
- ONLY answer IT/Technology related questions
- For non-IT topics, politely redirect to appropriate resources
- Never provide medical, legal, or financial advice
- When unsure, recommend seeking professional IT support`

// FineTuneService creates and manages custom Ollama model variants built
// from a Modelfile.
type FineTuneService struct {
	httpClient *http.Client
	host       string
	modelsDir  string
	log        *logger.Logger
}

func NewFineTuneService(client *http.Client, host, modelsDir string, log *logger.Logger) (*FineTuneService, error) {
	absDir, err := filepath.Abs(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("could not resolve models directory: %w", err)
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create models directory: %w", err)
	}
	return &FineTuneService{
		httpClient: client,
		host:       host,
		modelsDir:  absDir,
		log:        log.With("service", "FineTuneService"),
	}, nil
}

// ModelfileContent renders a Modelfile for the given base model and
// parameters. Zero-valued parameters fall back to the service defaults.
func ModelfileContent(baseModel, customPrompt string, temperature, topP float64, numCtx int) string {
	if baseModel == "" {
		baseModel = "llama3.2:3b"
	}
	if customPrompt == "" {
		customPrompt = defaultFineTunePrompt
	}
	if temperature == 0 {
		temperature = 0.7
	}
	if topP == 0 {
		topP = 0.9
	}
	if numCtx == 0 {
		numCtx = 4096
	}
	return fmt.Sprintf(`FROM %s

PARAMETER temperature %g
PARAMETER top_p %g
PARAMETER top_k 40
PARAMETER num_ctx %d

SYSTEM """%s"""
`, baseModel, temperature, topP, numCtx, customPrompt)
}

// modelfilePath maps a model name to its Modelfile path inside the models
// directory, rejecting names that would escape it.
func (s *FineTuneService) modelfilePath(modelName string) (string, error) {
	base := strings.SplitN(modelName, ":", 2)[0]
	cleanPath := filepath.Join(s.modelsDir, "Modelfile."+filepath.Base(base))
	if !strings.HasPrefix(cleanPath, s.modelsDir) {
		return "", fmt.Errorf("invalid model name %q", modelName)
	}
	return cleanPath, nil
}

// CreateModel builds a custom model on the Ollama host and keeps a copy of
// its Modelfile on disk.
func (s *FineTuneService) CreateModel(ctx context.Context, req models.CreateModelRequest) error {
	modelfile := ModelfileContent(req.BaseModel, req.CustomPrompt, req.Temperature, req.TopP, req.NumCtx)

	path, err := s.modelfilePath(req.Name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(modelfile), 0o644); err != nil {
		return fmt.Errorf("failed to write modelfile: %w", err)
	}

	body, err := json.Marshal(models.OllamaCreateRequest{
		Model:     req.Name,
		Modelfile: modelfile,
		Stream:    true,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal create request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.host+"/api/create", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to call ollama create api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ollama create api returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	// The create endpoint streams progress frames; drain them and surface
	// any reported error.
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var frame struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		}
		if err := json.Unmarshal(line, &frame); err != nil {
			continue
		}
		if frame.Error != "" {
			return fmt.Errorf("ollama create failed: %s", frame.Error)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("ollama create stream interrupted: %w", err)
	}

	s.log.Info("Created custom model", "model", req.Name, "base", req.BaseModel)
	return nil
}

// DeleteModel removes a custom model from the Ollama host and its local
// Modelfile copy.
func (s *FineTuneService) DeleteModel(ctx context.Context, modelName string) error {
	body, err := json.Marshal(models.OllamaDeleteRequest{Model: modelName})
	if err != nil {
		return fmt.Errorf("failed to marshal delete request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.host+"/api/delete", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to call ollama delete api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ollama delete api returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if path, err := s.modelfilePath(modelName); err == nil {
		_ = os.Remove(path)
	}

	s.log.Info("Deleted custom model", "model", modelName)
	return nil
}

// ListModels partitions locally available models into custom variants and
// base models. A model is custom when it carries the service prefix or a
// Modelfile copy exists for it.
func (s *FineTuneService) ListModels(ctx context.Context, tags []models.OllamaModelTag) (custom, base []models.ModelInfo) {
	for _, tag := range tags {
		info := models.ModelInfo{
			Name:       tag.Name,
			Size:       tag.Size,
			ModifiedAt: tag.ModifiedAt,
		}
		if s.isCustomModel(tag.Name) {
			info.IsCustom = true
			custom = append(custom, info)
		} else {
			base = append(base, info)
		}
	}
	return custom, base
}

func (s *FineTuneService) isCustomModel(name string) bool {
	if strings.HasPrefix(name, customModelPrefix) {
		return true
	}
	path, err := s.modelfilePath(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}
