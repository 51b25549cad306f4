package models

// OllamaEmbedRequest is the body of the Ollama embedding API.
type OllamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// OllamaEmbedResponse carries the embedding back from Ollama.
type OllamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// OllamaChatMessage is one turn in an Ollama chat request.
type OllamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OllamaOptions are the sampling parameters passed to /api/chat.
type OllamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// OllamaChatRequest is the body of the Ollama chat API.
type OllamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []OllamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  *OllamaOptions      `json:"options,omitempty"`
}

// OllamaChatResponse is one (possibly streamed) chat completion frame.
type OllamaChatResponse struct {
	Message OllamaChatMessage `json:"message"`
	Done    bool              `json:"done"`
}

// OllamaTagsResponse is the body of GET /api/tags.
type OllamaTagsResponse struct {
	Models []OllamaModelTag `json:"models"`
}

// OllamaModelTag describes one locally available model.
type OllamaModelTag struct {
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	ModifiedAt string `json:"modified_at"`
}

// OllamaCreateRequest is the body of POST /api/create.
type OllamaCreateRequest struct {
	Model     string `json:"model"`
	Modelfile string `json:"modelfile"`
	Stream    bool   `json:"stream"`
}

// OllamaDeleteRequest is the body of DELETE /api/delete.
type OllamaDeleteRequest struct {
	Model string `json:"model"`
}
