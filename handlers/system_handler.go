package handlers

import (
	"net/http"

	"caseflow-backend/service"

	"github.com/gin-gonic/gin"
)

// SystemHandler exposes health and metrics endpoints
type SystemHandler struct {
	metrics *service.MetricsStore
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(metrics *service.MetricsStore) *SystemHandler {
	return &SystemHandler{metrics: metrics}
}

// Health handles GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "caseflow-backend",
	})
}

// Metrics handles GET /metrics in Prometheus text exposition format
func (h *SystemHandler) Metrics(c *gin.Context) {
	c.Data(http.StatusOK, "text/plain; version=0.0.4", []byte(h.metrics.RenderText()))
}
