package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scio-helpdesk/server/models"
	"github.com/scio-helpdesk/server/services"
)

// Version is the reported service version.
const Version = "1.0.0"

// HealthController reports backend reachability. It always answers 200;
// degraded dependencies show up in the body.
type HealthController struct {
	ollama   services.OllamaService
	vectordb services.VectorDBService
}

func NewHealthController(ollama services.OllamaService, vectordb services.VectorDBService) *HealthController {
	return &HealthController{ollama: ollama, vectordb: vectordb}
}

// Health handles GET /health.
func (c *HealthController) Health(ctx *gin.Context) {
	ollamaUp := c.ollama.IsConnected(ctx.Request.Context())
	chromaUp := c.vectordb.IsConnected(ctx.Request.Context())

	status := "healthy"
	if !ollamaUp || !chromaUp {
		status = "degraded"
	}

	ctx.JSON(http.StatusOK, models.HealthResponse{
		Status:          status,
		Version:         Version,
		OllamaConnected: ollamaUp,
		ChromaConnected: chromaUp,
	})
}
