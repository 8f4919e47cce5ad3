package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/casperarmani/backendmultchat/internal/health"
)

// Health handles the health check endpoint.
func (h *Handlers) Health(c *gin.Context) {
	report := h.monitor.Health(c.Request.Context())

	status := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

// Metrics serves the operational snapshot. Collecting it mutates nothing.
func (h *Handlers) Metrics(c *gin.Context) {
	metrics, err := h.monitor.Collect(c.Request.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to collect metrics")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to collect metrics"})
		return
	}
	c.JSON(http.StatusOK, metrics)
}
