package handler

import (
	"errors"
	"net/http"
	"strconv"

	"lm-bench/internal/experiment"
	"lm-bench/internal/model"
	"lm-bench/internal/service"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type ExperimentHandler struct {
	svc *service.ServiceContext
}

func NewExperimentHandler(svc *service.ServiceContext) *ExperimentHandler {
	return &ExperimentHandler{svc: svc}
}

// ListExperiments lists experiments, newest first.
func (h *ExperimentHandler) ListExperiments(c *gin.Context) {
	var experiments []model.Experiment

	query := h.svc.DB.Order("created_at DESC")

	if limit := c.Query("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			query = query.Limit(l)
		}
	}

	if err := query.Find(&experiments).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"experiments": experiments,
	})
}

// GetExperiment returns one experiment by id or uuid.
func (h *ExperimentHandler) GetExperiment(c *gin.Context) {
	exp, err := service.FindExperiment(c.Request.Context(), h.svc.DB, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"experiment": exp,
		"algorithms": exp.Algorithms(),
	})
}

// ListRuns lists the runs of an experiment, optionally filtered by status,
// algorithm or domain.
func (h *ExperimentHandler) ListRuns(c *gin.Context) {
	exp, err := service.FindExperiment(c.Request.Context(), h.svc.DB, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	query := h.svc.DB.Where("experiment_id = ?", exp.ID).Order("run_index")
	for _, key := range []string{"status", "algorithm", "domain"} {
		if v := c.Query(key); v != "" {
			query = query.Where(key+" = ?", v)
		}
	}

	var runs []model.Run
	if err := query.Find(&runs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"total": len(runs),
	})
}

// GetRun returns a single run with decoded metrics.
func (h *ExperimentHandler) GetRun(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("run_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return
	}

	var run model.Run
	if err := h.svc.DB.First(&run, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	metrics, err := run.Metrics()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run":     run,
		"metrics": metrics,
		"command": run.Command(),
	})
}

// GetReport renders the report as JSON, or as markdown with format=markdown.
func (h *ExperimentHandler) GetReport(c *gin.Context) {
	report, err := h.svc.Reports.Report(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	if c.Query("format") == "markdown" {
		c.String(http.StatusOK, service.RenderReportMarkdown(report))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"report": report,
	})
}

// RunExperiment prepares a batch and starts it in the background. The
// response carries the experiment id; run progress is read from its runs.
func (h *ExperimentHandler) RunExperiment(c *gin.Context) {
	var req service.ExperimentRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.svc.Runner.Start(c.Request.Context(), req)
	if err != nil {
		var cfgErr *experiment.ConfigurationError
		if errors.As(err, &cfgErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"result": result,
	})
}

// ParseExperiment re-runs the parse step of an experiment.
func (h *ExperimentHandler) ParseExperiment(c *gin.Context) {
	exp, err := service.FindExperiment(c.Request.Context(), h.svc.DB, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	summary, err := h.svc.Parse.ParseExperiment(c.Request.Context(), exp.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"summary": summary,
	})
}
