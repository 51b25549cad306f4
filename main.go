package main

import (
	"context"
	"log"
	"net/http"
	"os"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/scio-helpdesk/server/config"
	"github.com/scio-helpdesk/server/controller"
	"github.com/scio-helpdesk/server/db"
	"github.com/scio-helpdesk/server/logger"
	"github.com/scio-helpdesk/server/services"
)

func main() {
	// A missing .env file is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg := config.Load()

	logg, err := logger.New(os.Getenv("GIN_MODE"))
	if err != nil {
		log.Fatalf("FATAL: Failed to create logger: %v", err)
	}
	defer logg.Sync()

	ctx := context.Background()

	// SQLite conversation store
	sqlite, err := db.NewSQLiteService(cfg.DatabasePath, logg)
	if err != nil {
		logg.Fatal("Failed to open database", "path", cfg.DatabasePath, "error", err)
	}
	if err := sqlite.AutoMigrateAll(); err != nil {
		logg.Fatal("Failed to migrate database", "error", err)
	}

	// Chroma vector index
	chromaClient, err := chromago.NewHTTPClient(chromago.WithBaseURL(cfg.ChromaURL))
	if err != nil {
		logg.Fatal("Failed to create chroma client", "url", cfg.ChromaURL, "error", err)
	}
	defer func() {
		if err := chromaClient.Close(); err != nil {
			logg.Warn("Failed to close chroma client", "error", err)
		}
	}()

	collection, err := services.GetOrCreateCollection(ctx, chromaClient, cfg.ChromaCollection)
	if err != nil {
		logg.Fatal("Failed to get or create collection", "collection", cfg.ChromaCollection, "error", err)
	}
	logg.Info("Connected to chroma collection", "collection", cfg.ChromaCollection)

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	// Service wiring
	embedder := services.NewOllamaEmbeddingService(httpClient, cfg.OllamaHost, cfg.EmbeddingModel, logg)
	vectordb := services.NewChromaVectorDBService(collection, embedder, logg)
	ollama := services.NewOllamaLLMService(httpClient, cfg.OllamaHost, logg)

	var gemini services.LLMService
	if cfg.GeminiAPIKey != "" {
		gemini, err = services.NewGeminiLLMService(ctx, cfg.GeminiAPIKey, logg)
		if err != nil {
			logg.Warn("Gemini backend unavailable, continuing with local models only", "error", err)
			gemini = nil
		} else {
			logg.Info("Gemini backend enabled", "model", cfg.GeminiModel)
		}
	} else {
		logg.Info("GEMINI_API_KEY not set, gemini model requests will fall back to the local model")
	}

	ragService := services.NewRAGService(vectordb, ollama, gemini, cfg.OllamaModel, cfg.GeminiModel, cfg.TopKResults, cfg.ChromaDistanceMetric, logg)
	loader := services.NewDataLoader(cfg.ChunkSize, cfg.ChunkOverlap, logg)
	ingestion := services.NewIngestionService(loader, vectordb, cfg.DatasetPath, logg)
	store := services.NewConversationStore(sqlite.DB(), logg)

	finetune, err := services.NewFineTuneService(httpClient, cfg.OllamaHost, cfg.ModelsDir, logg)
	if err != nil {
		logg.Fatal("Failed to initialize model storage", "dir", cfg.ModelsDir, "error", err)
	}

	if cfg.WatchDataset {
		go ingestion.WatchDatasetDirectory(ctx)
	}

	// Controllers
	chatController := controller.NewChatController(ragService, store, logg)
	knowledgeController := controller.NewKnowledgeController(ingestion, vectordb, logg)
	modelController := controller.NewModelController(ollama, finetune, logg)
	healthController := controller.NewHealthController(ollama, vectordb)

	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	router.GET("/health", healthController.Health)

	apiV1 := router.Group("/api/v1")
	{
		chat := apiV1.Group("/chat")
		{
			chat.POST("", chatController.SendMessage)
			chat.POST("/stream", chatController.SendMessageStream)
			chat.POST("/feedback", chatController.SubmitFeedback)
			chat.GET("/conversations", chatController.ListConversations)
			chat.GET("/conversations/:id", chatController.GetConversation)
			chat.DELETE("/conversations/:id", chatController.DeleteConversation)
			chat.PATCH("/conversations/:id/pin", chatController.PinConversation)
		}

		knowledge := apiV1.Group("/knowledge")
		{
			knowledge.POST("/ingest", knowledgeController.Ingest)
			knowledge.POST("/ingest/sync", knowledgeController.IngestSync)
			knowledge.GET("/stats", knowledgeController.Stats)
			knowledge.DELETE("/clear", knowledgeController.Clear)
		}

		modelGroup := apiV1.Group("/models")
		{
			modelGroup.GET("", modelController.ListModels)
			modelGroup.GET("/base", modelController.ListBaseModels)
			modelGroup.POST("", modelController.CreateModel)
			modelGroup.DELETE("/:name", modelController.DeleteModel)
		}
	}

	addr := cfg.Host + ":" + cfg.Port
	logg.Info("Starting server", "app", cfg.AppName, "addr", addr)
	if err := router.Run(addr); err != nil {
		logg.Fatal("Failed to start server", "error", err)
	}
}
