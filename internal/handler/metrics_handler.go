package handler

import (
	"errors"
	"net/http"

	"lm-bench/internal/parser"
	"lm-bench/internal/service"

	"github.com/gin-gonic/gin"
)

type MetricsHandler struct {
	svc *service.ServiceContext
}

func NewMetricsHandler(svc *service.ServiceContext) *MetricsHandler {
	return &MetricsHandler{svc: svc}
}

// Extract applies the extraction rules to posted planner output.
func (h *MetricsHandler) Extract(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	metrics, err := h.svc.Parse.Extract(req.Text)
	if err != nil {
		var parseErr *parser.MetricParseError
		if errors.As(err, &parseErr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error": err.Error(),
				"field": parseErr.Field,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"metrics": metrics,
	})
}

// ListConfigs returns the run configurations generated from the current
// configuration file.
func (h *MetricsHandler) ListConfigs(c *gin.Context) {
	configs, err := h.svc.Runner.Configs()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"configs": configs,
		"total":   len(configs),
	})
}
