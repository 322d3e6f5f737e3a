package handlers

import (
	"net/http"

	"caseflow-backend/repository"
	"caseflow-backend/service"

	"github.com/gin-gonic/gin"
)

// UnderwriteHandler handles HTTP requests for underwriting decisions
type UnderwriteHandler struct {
	underwriteService *service.UnderwriteService
	replayRepo        *repository.ReplayRepository
	traceRepo         *repository.TraceRepository
}

// NewUnderwriteHandler creates a new underwrite handler
func NewUnderwriteHandler(underwriteService *service.UnderwriteService, replayRepo *repository.ReplayRepository, traceRepo *repository.TraceRepository) *UnderwriteHandler {
	return &UnderwriteHandler{
		underwriteService: underwriteService,
		replayRepo:        replayRepo,
		traceRepo:         traceRepo,
	}
}

// UnderwriteRequestBody represents the request body for an underwrite call
type UnderwriteRequestBody struct {
	CaseID        string                 `json:"case_id" binding:"required"`
	Payload       map[string]interface{} `json:"payload" binding:"required"`
	ModelVersion  string                 `json:"model_version"`
	EvidenceQuery string                 `json:"evidence_query"`
	TopK          int                    `json:"top_k"`
}

// Underwrite handles POST /api/underwrite
func (h *UnderwriteHandler) Underwrite(c *gin.Context) {
	var req UnderwriteRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": err.Error(),
			},
		})
		return
	}

	response, err := h.underwriteService.Underwrite(service.UnderwriteRequest{
		CaseID:        req.CaseID,
		Payload:       req.Payload,
		ModelVersion:  req.ModelVersion,
		EvidenceQuery: req.EvidenceQuery,
		TopK:          req.TopK,
		RequestID:     requestID(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    response,
	})
}

// Replay handles POST /api/underwrite/:case_id/replay/:request_id
func (h *UnderwriteHandler) Replay(c *gin.Context) {
	caseID := c.Param("case_id")
	storedRequestID := c.Param("request_id")

	response, err := h.underwriteService.Replay(caseID, storedRequestID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    response,
	})
}

// GetResult handles GET /api/underwrite/:case_id/results/:request_id
func (h *UnderwriteHandler) GetResult(c *gin.Context) {
	response, err := h.replayRepo.LoadResult(c.Param("case_id"), c.Param("request_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    response,
	})
}

// GetTrace handles GET /api/underwrite/:case_id/traces/:request_id
func (h *UnderwriteHandler) GetTrace(c *gin.Context) {
	trace, err := h.traceRepo.Load(c.Param("case_id"), c.Param("request_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    trace,
	})
}
