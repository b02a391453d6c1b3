package server

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/civicworks/capital-triage/internal/models"
	"github.com/civicworks/capital-triage/internal/pipeline"
)

// Handlers contains all HTTP request handlers.
type Handlers struct {
	deps   Deps
	logger *zap.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps Deps, logger *zap.Logger) *Handlers {
	return &Handlers{deps: deps, logger: logger}
}

// Response is the standard JSON envelope.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Health handles GET /api/health.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// InitRequest is the optional body of POST /api/init.
type InitRequest struct {
	Budget float64 `json:"budget"`
}

// Init handles POST /api/init: clears all pipeline state, loads the sample
// data set, and optionally sets the quarterly budget for the run.
func (h *Handlers) Init(c *gin.Context) {
	var req InitRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.fail(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
			return
		}
		if req.Budget < 0 {
			h.fail(c, http.StatusBadRequest, fmt.Errorf("budget must not be negative"))
			return
		}
	}

	if err := h.deps.Pipeline.Reset(); err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}
	if req.Budget > 0 {
		h.deps.Pipeline.SetBudget(req.Budget)
	}
	if err := h.deps.Issues.DeleteAll(); err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}
	seeded, err := h.deps.Seeder.Load()
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}
	budget, err := h.deps.Pipeline.BudgetStatus()
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"issues_seeded": seeded,
			"budget":        budget,
		},
	})
}

// RunFormation handles POST /api/run-formation.
func (h *Handlers) RunFormation(c *gin.Context) {
	result, err := h.deps.Pipeline.RunFormation(c.Request.Context())
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// RunGovernance handles POST /api/run-governance.
func (h *Handlers) RunGovernance(c *gin.Context) {
	result, err := h.deps.Pipeline.RunGovernance(c.Request.Context())
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// ListApprovals handles GET /api/approvals: the pending queue plus the
// advisory budget position.
func (h *Handlers) ListApprovals(c *gin.Context) {
	pending, err := h.deps.Gateway.Pending()
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}
	budget, err := h.deps.Pipeline.BudgetStatus()
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"pending": pending,
			"budget":  budget,
		},
	})
}

// SubmitApprovalsRequest is the body of POST /api/approvals.
type SubmitApprovalsRequest struct {
	Decisions []models.HumanVerdict `json:"decisions" binding:"required"`
}

// SubmitApprovals handles POST /api/approvals. Per-entry validation failures
// are reported in the result; only a malformed body is a request error.
func (h *Handlers) SubmitApprovals(c *gin.Context) {
	var req SubmitApprovalsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	result, err := h.deps.Gateway.Submit(req.Decisions)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// RunScheduling handles POST /api/run-scheduling. Unresolved approvals yield
// 409 rather than 500.
func (h *Handlers) RunScheduling(c *gin.Context) {
	result, err := h.deps.Pipeline.RunScheduling(c.Request.Context())
	if err != nil {
		if errors.Is(err, pipeline.ErrPendingApprovals) {
			h.fail(c, http.StatusConflict, err)
			return
		}
		h.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// Results handles GET /api/results.
func (h *Handlers) Results(c *gin.Context) {
	results, err := h.deps.Pipeline.Results()
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: results})
}

// DownloadReport handles GET /api/report: builds the Excel workbook and
// returns it as an attachment.
func (h *Handlers) DownloadReport(c *gin.Context) {
	results, err := h.deps.Pipeline.Results()
	if err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}

	if err := os.MkdirAll(h.deps.ReportDir, 0o755); err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}

	filename := fmt.Sprintf("triage-report-%s.xlsx", time.Now().Format("20060102-150405"))
	path := filepath.Join(h.deps.ReportDir, filename)
	if err := h.deps.Report.Write(results, path); err != nil {
		h.fail(c, http.StatusInternalServerError, err)
		return
	}

	c.FileAttachment(path, filename)
}

func (h *Handlers) fail(c *gin.Context, status int, err error) {
	h.logger.Error("Request failed",
		zap.String("path", c.Request.URL.Path),
		zap.Int("status", status),
		zap.Error(err))
	c.JSON(status, Response{Success: false, Error: err.Error()})
}
