package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings holds all runtime configuration, loaded once at startup from the
// environment (a .env file is read by main before this is built).
type Settings struct {
	// App info
	AppName        string
	AppDescription string
	AppVersion     string

	// Server
	Host string
	Port string

	// ChromaDB
	ChromaURL        string
	ChromaCollection string
	// Distance metric the collection was created with. Relevance scoring
	// depends on it: "l2" uses 1/(1+d), "cosine" uses 1-d.
	ChromaDistanceMetric string

	// Ollama
	OllamaHost     string
	OllamaModel    string
	EmbeddingModel string

	// Gemini
	GeminiAPIKey string
	GeminiModel  string

	// Database
	DatabasePath string

	// RAG settings
	ChunkSize    int
	ChunkOverlap int
	TopKResults  int

	// Dataset
	DatasetPath  string
	WatchDataset bool

	// Fine-tuned model storage
	ModelsDir string

	HTTPTimeout time.Duration
}

// Load builds Settings from environment variables with the same defaults the
// service has always shipped with.
func Load() *Settings {
	return &Settings{
		AppName:        "Scio",
		AppDescription: "IT Helpdesk RAG Chatbot",
		AppVersion:     "1.0.0",

		Host: GetEnv("HOST", "0.0.0.0"),
		Port: GetEnv("PORT", "8000"),

		ChromaURL:            GetEnv("CHROMA_URL", "http://localhost:8001"),
		ChromaCollection:     GetEnv("CHROMA_COLLECTION", "knowledge_base"),
		ChromaDistanceMetric: strings.ToLower(GetEnv("CHROMA_DISTANCE_METRIC", "l2")),

		OllamaHost:     GetEnv("OLLAMA_HOST", "http://localhost:11434"),
		OllamaModel:    GetEnv("OLLAMA_MODEL", "llama3.2:3b"),
		EmbeddingModel: GetEnv("EMBEDDING_MODEL", "nomic-embed-text:v1.5"),

		GeminiAPIKey: GetEnv("GEMINI_API_KEY", ""),
		GeminiModel:  GetEnv("GEMINI_MODEL", "gemini-2.0-flash"),

		DatabasePath: GetEnv("DATABASE_PATH", "data/scio.db"),

		ChunkSize:    GetEnvInt("CHUNK_SIZE", 800),
		ChunkOverlap: GetEnvInt("CHUNK_OVERLAP", 150),
		TopKResults:  GetEnvInt("TOP_K_RESULTS", 3),

		DatasetPath:  GetEnv("DATASET_PATH", "../Dataset"),
		WatchDataset: GetEnvBool("WATCH_DATASET", false),

		ModelsDir: GetEnv("MODELS_DIR", "models"),

		HTTPTimeout: time.Duration(GetEnvInt("HTTP_TIMEOUT_SECONDS", 120)) * time.Second,
	}
}

func GetEnv(name, def string) string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	return v
}

func GetEnvInt(name string, def int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func GetEnvBool(name string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
