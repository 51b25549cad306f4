package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/scio-helpdesk/server/logger"
	"github.com/scio-helpdesk/server/models"
)

// historyWindow caps how many prior turns are forwarded to the LLM.
const historyWindow = 6

// sourcePreviewLimit truncates citation content for display.
const sourcePreviewLimit = 500

// Provider identifies which LLM backend answers a request.
type Provider string

const (
	ProviderOllama Provider = "ollama"
	ProviderGemini Provider = "gemini"
)

// ModelSelector is the routing decision for one request, resolved once at
// the request boundary instead of re-parsing the override per call.
type ModelSelector struct {
	Provider Provider
	Model    string
}

// RAGService orchestrates retrieval, critical-issue detection, prompt
// assembly, and answer generation.
type RAGService interface {
	// Retrieve embeds the query, runs a nearest-neighbor search, and returns
	// the assembled context text plus citation-ready source references.
	Retrieve(ctx context.Context, query string, topK int) (string, []models.SourceDocument, error)
	// DetectCriticalIssue flags security-urgent messages by keyword.
	DetectCriticalIssue(text string) bool
	// GenerateResponse produces the full answer with citations and the
	// critical flag.
	GenerateResponse(ctx context.Context, query string, history []models.HistoryMessage, modelOverride string) (string, []models.SourceDocument, bool, error)
	// GenerateResponseStream relays answer fragments through onDelta and
	// returns citations and the critical flag once the stream completes.
	GenerateResponseStream(ctx context.Context, query string, history []models.HistoryMessage, modelOverride string, onDelta func(string) error) ([]models.SourceDocument, bool, error)
	// GenerateTitle produces a short conversation title, degrading to a
	// truncation of the message itself on failure.
	GenerateTitle(ctx context.Context, firstMessage string) string
	// LearnQA ingests a question/answer pair into the knowledge base.
	LearnQA(ctx context.Context, question, answer string) error
}

type ragServiceImpl struct {
	vectordb       VectorDBService
	ollama         LLMService
	gemini         LLMService // nil when no API key is configured
	defaultModel   string
	geminiModel    string
	topK           int
	distanceMetric string
	log            *logger.Logger
}

// NewRAGService wires the orchestrator. gemini may be nil; overrides naming
// a Gemini model then fall back to the default Ollama model.
func NewRAGService(vectordb VectorDBService, ollama, gemini LLMService, defaultModel, geminiModel string, topK int, distanceMetric string, log *logger.Logger) RAGService {
	return &ragServiceImpl{
		vectordb:       vectordb,
		ollama:         ollama,
		gemini:         gemini,
		defaultModel:   defaultModel,
		geminiModel:    geminiModel,
		topK:           topK,
		distanceMetric: distanceMetric,
		log:            log.With("service", "RAGService"),
	}
}

func (r *ragServiceImpl) DetectCriticalIssue(text string) bool {
	lowered := strings.ToLower(text)
	for _, keyword := range criticalKeywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}

// relevanceScore converts a raw distance into a higher-is-better score in
// (0,1]. The conversion depends on the collection's distance metric.
func relevanceScore(metric string, distance float64) float64 {
	switch metric {
	case "cosine":
		// Cosine distance is 1-similarity; invert and clamp.
		score := 1 - distance
		if score < 0 {
			return 0
		}
		if score > 1 {
			return 1
		}
		return score
	default: // l2
		return 1 / (1 + distance)
	}
}

func (r *ragServiceImpl) Retrieve(ctx context.Context, query string, topK int) (string, []models.SourceDocument, error) {
	if topK <= 0 {
		topK = r.topK
	}

	hits, err := r.vectordb.Search(ctx, query, topK)
	if err != nil {
		return "", nil, fmt.Errorf("failed to search knowledge base: %w", err)
	}

	contextParts := make([]string, 0, len(hits))
	sources := make([]models.SourceDocument, 0, len(hits))
	for i, hit := range hits {
		contextParts = append(contextParts, fmt.Sprintf("[Document %d]\n%s", i+1, hit.Content))

		sourceName := "Unknown"
		if s, ok := hit.Metadata["source"].(string); ok && s != "" {
			sourceName = s
		}
		if category, ok := hit.Metadata["category"].(string); ok && category != "" {
			sourceName = fmt.Sprintf("%s (%s)", sourceName, category)
		}

		preview := hit.Content
		if len(preview) > sourcePreviewLimit {
			preview = preview[:sourcePreviewLimit] + "..."
		}

		sources = append(sources, models.SourceDocument{
			Content:        preview,
			Source:         sourceName,
			Metadata:       hit.Metadata,
			RelevanceScore: relevanceScore(r.distanceMetric, hit.Distance),
		})
	}

	contextText := noContextSentinel
	if len(contextParts) > 0 {
		contextText = strings.Join(contextParts, "\n\n")
	}
	return contextText, sources, nil
}

// resolveModel turns an optional override into an explicit routing decision.
// Overrides naming a Gemini model route to the cloud backend when it is
// configured; any other override names a local Ollama model (including
// fine-tuned variants); no override means the configured defaults.
func (r *ragServiceImpl) resolveModel(override string) ModelSelector {
	override = strings.TrimSpace(override)
	if override != "" && strings.Contains(strings.ToLower(override), "gemini") {
		if r.gemini != nil {
			return ModelSelector{Provider: ProviderGemini, Model: override}
		}
		r.log.Warn("Gemini override requested but backend not configured; using default model", "override", override)
		return ModelSelector{Provider: ProviderOllama, Model: r.defaultModel}
	}
	if override != "" {
		return ModelSelector{Provider: ProviderOllama, Model: override}
	}
	return ModelSelector{Provider: ProviderOllama, Model: r.defaultModel}
}

func (r *ragServiceImpl) backend(selector ModelSelector) LLMService {
	if selector.Provider == ProviderGemini {
		return r.gemini
	}
	return r.ollama
}

// trimHistory keeps the most recent turns, oldest-first.
func trimHistory(history []models.HistoryMessage) []models.HistoryMessage {
	if len(history) > historyWindow {
		return history[len(history)-historyWindow:]
	}
	return history
}

func (r *ragServiceImpl) GenerateResponse(ctx context.Context, query string, history []models.HistoryMessage, modelOverride string) (string, []models.SourceDocument, bool, error) {
	isCritical := r.DetectCriticalIssue(query)

	contextText, sources, err := r.Retrieve(ctx, query, 0)
	if err != nil {
		return "", nil, isCritical, err
	}

	selector := r.resolveModel(modelOverride)
	r.log.Info("Generating response", "provider", selector.Provider, "model", selector.Model, "critical", isCritical, "sources", len(sources))

	response, err := r.backend(selector).Generate(ctx, selector.Model, query, contextText, trimHistory(history))
	if err != nil {
		return "", nil, isCritical, fmt.Errorf("failed to generate response: %w", err)
	}

	if isCritical {
		response = criticalWarning + "\n\n" + response
	}
	return response, sources, isCritical, nil
}

func (r *ragServiceImpl) GenerateResponseStream(ctx context.Context, query string, history []models.HistoryMessage, modelOverride string, onDelta func(string) error) ([]models.SourceDocument, bool, error) {
	isCritical := r.DetectCriticalIssue(query)

	contextText, sources, err := r.Retrieve(ctx, query, 0)
	if err != nil {
		return nil, isCritical, err
	}

	if isCritical {
		if err := onDelta(criticalWarning + "\n\n"); err != nil {
			return sources, isCritical, err
		}
	}

	selector := r.resolveModel(modelOverride)
	if err := r.backend(selector).GenerateStream(ctx, selector.Model, query, contextText, trimHistory(history), onDelta); err != nil {
		return sources, isCritical, err
	}
	return sources, isCritical, nil
}

func (r *ragServiceImpl) GenerateTitle(ctx context.Context, firstMessage string) string {
	title := r.ollama.GenerateTitle(ctx, r.defaultModel, firstMessage)
	if title != defaultTitle {
		return title
	}
	// Degrade to a truncation of the message itself.
	if len(firstMessage) > 50 {
		return firstMessage[:50] + "..."
	}
	return firstMessage
}

func (r *ragServiceImpl) LearnQA(ctx context.Context, question, answer string) error {
	content := fmt.Sprintf("Question: %s\n\nAnswer: %s", question, answer)
	doc := models.Document{
		ID:      models.GenerateDocID(content, "learned_qa", 0),
		Content: content,
		Metadata: map[string]interface{}{
			"source":   "learned_qa",
			"category": "Learned QA",
		},
	}
	if _, err := r.vectordb.AddDocuments(ctx, []models.Document{doc}); err != nil {
		return fmt.Errorf("failed to ingest learned QA pair: %w", err)
	}
	r.log.Info("Learned QA pair from positive feedback", "doc_id", doc.ID)
	return nil
}
