package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scio-helpdesk/server/logger"
	"github.com/scio-helpdesk/server/models"
	"github.com/scio-helpdesk/server/services"
)

// KnowledgeController exposes ingestion and knowledge-base introspection.
type KnowledgeController struct {
	ingestion *services.IngestionService
	vectordb  services.VectorDBService
	log       *logger.Logger
}

func NewKnowledgeController(ingestion *services.IngestionService, vectordb services.VectorDBService, log *logger.Logger) *KnowledgeController {
	return &KnowledgeController{
		ingestion: ingestion,
		vectordb:  vectordb,
		log:       log.With("controller", "KnowledgeController"),
	}
}

// Ingest handles POST /api/v1/knowledge/ingest. The run happens in the
// background; the response only acknowledges the kickoff.
func (c *KnowledgeController) Ingest(ctx *gin.Context) {
	var req models.IngestRequest
	// Body is optional; an empty POST means a default incremental run.
	if err := ctx.ShouldBindJSON(&req); err != nil && ctx.Request.ContentLength > 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	if err := c.ingestion.RunAsync(req.ForceReingest); err != nil {
		if errors.Is(err, services.ErrIngestionInProgress) {
			ctx.JSON(http.StatusConflict, models.IngestResponse{
				Success: false,
				Message: "Ingestion already in progress",
			})
			return
		}
		c.log.Error("Failed to start ingestion", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start ingestion"})
		return
	}

	ctx.JSON(http.StatusAccepted, models.IngestResponse{
		Success: true,
		Message: "Ingestion started",
	})
}

// IngestSync handles POST /api/v1/knowledge/ingest/sync, blocking until the
// run completes.
func (c *KnowledgeController) IngestSync(ctx *gin.Context) {
	var req models.IngestRequest
	if err := ctx.ShouldBindJSON(&req); err != nil && ctx.Request.ContentLength > 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	count, err := c.ingestion.Run(ctx.Request.Context(), req.ForceReingest)
	if err != nil {
		if errors.Is(err, services.ErrIngestionInProgress) {
			ctx.JSON(http.StatusConflict, models.IngestResponse{
				Success: false,
				Message: "Ingestion already in progress",
			})
			return
		}
		c.log.Error("Ingestion failed", "error", err)
		ctx.JSON(http.StatusInternalServerError, models.IngestResponse{
			Success: false,
			Message: "Ingestion failed",
			Error:   err.Error(),
		})
		return
	}

	ctx.JSON(http.StatusOK, models.IngestResponse{
		Success:            true,
		Message:            "Ingestion completed",
		DocumentsProcessed: count,
	})
}

// Stats handles GET /api/v1/knowledge/stats.
func (c *KnowledgeController) Stats(ctx *gin.Context) {
	status := c.ingestion.Status()

	stats := models.KnowledgeStats{
		IngestionState: string(status.Phase),
		LastIngestion:  status.LastIngestion,
		LastError:      status.LastError,
		CollectionName: c.vectordb.CollectionName(),
	}

	count, err := c.vectordb.Count(ctx.Request.Context())
	if err != nil {
		c.log.Warn("Could not count documents", "error", err)
	} else {
		stats.TotalDocuments = count
	}

	ctx.JSON(http.StatusOK, stats)
}

// Clear handles DELETE /api/v1/knowledge/clear.
func (c *KnowledgeController) Clear(ctx *gin.Context) {
	if err := c.ingestion.Clear(ctx.Request.Context()); err != nil {
		if errors.Is(err, services.ErrIngestionInProgress) {
			ctx.JSON(http.StatusConflict, gin.H{"error": "Ingestion in progress, try again later"})
			return
		}
		c.log.Error("Failed to clear knowledge base", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear knowledge base"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true, "message": "Knowledge base cleared"})
}
