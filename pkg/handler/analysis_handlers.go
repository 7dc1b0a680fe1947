// Analysis API handlers
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/choraleia/analyst/pkg/chart"
	"github.com/choraleia/analyst/pkg/db"
	"github.com/choraleia/analyst/pkg/insight"
	"github.com/choraleia/analyst/pkg/models"
	"github.com/choraleia/analyst/pkg/service"
	"github.com/choraleia/analyst/pkg/tools"
	"github.com/choraleia/analyst/pkg/tools/database"
)

// Analyst is the part of service.AnalystService the API needs.
type Analyst interface {
	Ask(ctx context.Context, req service.AskRequest) (*models.AgentRun, error)
	Rechart(ctx context.Context, runID, kind string) (*models.ChartSpec, error)
	Summarize(ctx context.Context, runID string) (*models.Insight, error)
	Schema(ctx context.Context, source string) (*database.Schema, error)
	Sources() []string
	DefaultSource() string
	Ping(ctx context.Context) map[string]string
}

// RunHistory is the part of service.HistoryService the API needs.
type RunHistory interface {
	Get(id string) (*models.AgentRun, error)
	List(sessionID string, limit, offset int) ([]db.AnalysisRun, error)
}

// AnalysisHandler handles question, run and schema API requests
type AnalysisHandler struct {
	analyst Analyst
	history RunHistory
}

func NewAnalysisHandler(analyst Analyst, history RunHistory) *AnalysisHandler {
	return &AnalysisHandler{analyst: analyst, history: history}
}

// RegisterRoutes registers analysis routes
func (h *AnalysisHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/query", h.Query)
	r.GET("/schema", h.Schema)
	r.GET("/tools", h.ListTools)
	r.GET("/health", h.Health)

	runs := r.Group("/runs")
	{
		runs.GET("", h.ListRuns)
		runs.GET("/:id", h.GetRun)
		runs.POST("/:id/chart", h.Rechart)
		runs.POST("/:id/summary", h.Summarize)
	}
}

// RunSummary is one row of the run list.
type RunSummary struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id,omitempty"`
	Database    string    `json:"database"`
	Question    string    `json:"question"`
	Termination string    `json:"termination"`
	ErrorKind   string    `json:"error_kind,omitempty"`
	Iterations  int       `json:"iterations"`
	ChartStatus string    `json:"chart_status"`
	CreatedAt   time.Time `json:"created_at"`
}

type rechartRequest struct {
	Kind string `json:"kind"`
}

// Query answers one question
// POST /api/query
func (h *AnalysisHandler) Query(c *gin.Context) {
	var req service.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	run, err := h.analyst.Ask(c.Request.Context(), req)
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

// ListRuns lists stored runs, newest first
// GET /api/runs?session_id=&limit=&offset=
func (h *AnalysisHandler) ListRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	records, err := h.history.List(c.Query("session_id"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	runs := make([]RunSummary, 0, len(records))
	for _, r := range records {
		runs = append(runs, RunSummary{
			ID:          r.ID,
			SessionID:   r.SessionID,
			Database:    r.Database,
			Question:    r.Question,
			Termination: r.Termination,
			ErrorKind:   r.ErrorKind,
			Iterations:  r.Iterations,
			ChartStatus: r.ChartStatus,
			CreatedAt:   r.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetRun returns a stored run with its result and chart
// GET /api/runs/:id
func (h *AnalysisHandler) GetRun(c *gin.Context) {
	run, err := h.history.Get(c.Param("id"))
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

// Rechart derives another chart from a run's result
// POST /api/runs/:id/chart
func (h *AnalysisHandler) Rechart(c *gin.Context) {
	var req rechartRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	spec, err := h.analyst.Rechart(c.Request.Context(), c.Param("id"), req.Kind)
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, spec)
}

// Summarize adds the contextual summary to an answered run
// POST /api/runs/:id/summary
func (h *AnalysisHandler) Summarize(c *gin.Context) {
	ins, err := h.analyst.Summarize(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ins)
}

// Schema describes a database source
// GET /api/schema?database=
func (h *AnalysisHandler) Schema(c *gin.Context) {
	schema, err := h.analyst.Schema(c.Request.Context(), c.Query("database"))
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, schema)
}

// ListTools lists the tools offered to the model
// GET /api/tools
func (h *AnalysisHandler) ListTools(c *gin.Context) {
	defs := tools.ListToolDefinitions()
	c.JSON(http.StatusOK, gin.H{
		"tools": defs,
		"count": len(defs),
	})
}

// Health reports the configured sources and which of them are unreachable
// GET /api/health
func (h *AnalysisHandler) Health(c *gin.Context) {
	failures := h.analyst.Ping(c.Request.Context())
	status, code := "ok", http.StatusOK
	if len(failures) > 0 {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":   status,
		"sources":  h.analyst.Sources(),
		"default":  h.analyst.DefaultSource(),
		"failures": failures,
		"time_utc": time.Now().UTC(),
	})
}

func statusOf(err error) int {
	var (
		validationErr *chart.ValidationError
		connErr       *database.ConnectionError
		genErr        *insight.GenerationError
	)
	switch {
	case errors.Is(err, service.ErrEmptyQuestion),
		errors.Is(err, service.ErrUnknownSource),
		errors.Is(err, service.ErrUnknownChart):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNoResult),
		errors.Is(err, service.ErrNoInsight):
		return http.StatusConflict
	case errors.As(err, &validationErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &connErr):
		return http.StatusServiceUnavailable
	case errors.As(err, &genErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
