package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scio-helpdesk/server/logger"
	"github.com/scio-helpdesk/server/models"
	"github.com/scio-helpdesk/server/services"
)

// ModelController manages custom fine-tuned model variants.
type ModelController struct {
	ollama   services.OllamaService
	finetune *services.FineTuneService
	log      *logger.Logger
}

func NewModelController(ollama services.OllamaService, finetune *services.FineTuneService, log *logger.Logger) *ModelController {
	return &ModelController{
		ollama:   ollama,
		finetune: finetune,
		log:      log.With("controller", "ModelController"),
	}
}

// ListModels handles GET /api/v1/models, returning every locally available
// model with custom variants flagged.
func (c *ModelController) ListModels(ctx *gin.Context) {
	tags, err := c.ollama.ListModels(ctx.Request.Context())
	if err != nil {
		c.log.Error("Failed to list models", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list models"})
		return
	}

	custom, base := c.finetune.ListModels(ctx.Request.Context(), tags)
	ctx.JSON(http.StatusOK, models.ModelListResponse{Models: append(custom, base...)})
}

// ListBaseModels handles GET /api/v1/models/base.
func (c *ModelController) ListBaseModels(ctx *gin.Context) {
	tags, err := c.ollama.ListModels(ctx.Request.Context())
	if err != nil {
		c.log.Error("Failed to list models", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list models"})
		return
	}

	_, base := c.finetune.ListModels(ctx.Request.Context(), tags)
	ctx.JSON(http.StatusOK, models.ModelListResponse{Models: base})
}

// CreateModel handles POST /api/v1/models.
func (c *ModelController) CreateModel(ctx *gin.Context) {
	var req models.CreateModelRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	if err := c.finetune.CreateModel(ctx.Request.Context(), req); err != nil {
		c.log.Error("Failed to create model", "name", req.Name, "error", err)
		ctx.JSON(http.StatusInternalServerError, models.ModelResponse{
			Success:   false,
			Message:   "Failed to create model",
			ModelName: req.Name,
			Error:     err.Error(),
		})
		return
	}

	ctx.JSON(http.StatusCreated, models.ModelResponse{
		Success:   true,
		Message:   "Model created",
		ModelName: req.Name,
	})
}

// DeleteModel handles DELETE /api/v1/models/:name.
func (c *ModelController) DeleteModel(ctx *gin.Context) {
	name := ctx.Param("name")

	if err := c.finetune.DeleteModel(ctx.Request.Context(), name); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			ctx.JSON(http.StatusNotFound, models.ModelResponse{
				Success:   false,
				Message:   "Model not found",
				ModelName: name,
			})
			return
		}
		c.log.Error("Failed to delete model", "name", name, "error", err)
		ctx.JSON(http.StatusInternalServerError, models.ModelResponse{
			Success:   false,
			Message:   "Failed to delete model",
			ModelName: name,
			Error:     err.Error(),
		})
		return
	}

	ctx.JSON(http.StatusOK, models.ModelResponse{
		Success:   true,
		Message:   "Model deleted",
		ModelName: name,
	})
}
