package handlers

import (
	"net/http"
	"strconv"

	"caseflow-backend/repository"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// IngestionHandler handles HTTP requests for ingestion run bookkeeping
type IngestionHandler struct {
	runRepo *repository.IngestionRunRepository
}

// NewIngestionHandler creates a new ingestion handler
func NewIngestionHandler(runRepo *repository.IngestionRunRepository) *IngestionHandler {
	return &IngestionHandler{runRepo: runRepo}
}

// ListRuns handles GET /api/ingestion-runs
func (h *IngestionHandler) ListRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	runs, err := h.runRepo.ListRecent(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    runs,
	})
}

// GetRun handles GET /api/ingestion-runs/:id
func (h *IngestionHandler) GetRun(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_ID",
				"message": "Invalid ingestion run ID format",
			},
		})
		return
	}

	run, err := h.runRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    run,
	})
}
