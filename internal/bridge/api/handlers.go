package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/miktos/bridge/internal/common/errors"
	"github.com/miktos/bridge/internal/common/logger"
	v1 "github.com/miktos/bridge/pkg/api/v1"
)

// Handler contains HTTP handlers for the bridge API
type Handler struct {
	service Service
	logger  *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(svc Service, log *logger.Logger) *Handler {
	return &Handler{
		service: svc,
		logger:  log.WithComponent("bridge-api"),
	}
}

// HealthCheck reports whether the bridge can accept commands.
// GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	state := h.service.Status().State
	switch state {
	case v1.BridgeStateReady, v1.BridgeStateBusy:
		c.JSON(http.StatusOK, HealthResponse{Status: "healthy", State: state})
	default:
		c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", State: state})
	}
}

// GetStatus returns the bridge status.
// GET /api/v1/status
func (h *Handler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Status())
}

// ExecuteCommand runs one command. Command failures are reported inside the
// response body with success=false; only malformed requests get a 4xx.
// POST /api/v1/commands
func (h *Handler) ExecuteCommand(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errors.ValidationError("command", err.Error()))
		return
	}

	cmd := v1.Command{
		ID:          req.ID,
		Name:        req.Command,
		Parameters:  req.Parameters,
		Timestamp:   time.Now(),
		RequesterID: req.RequesterID,
	}
	resp := h.service.ExecuteCommand(c.Request.Context(), cmd)
	if !resp.Success {
		h.logger.WithContext(c.Request.Context()).Debug("command rejected",
			zap.String("command", req.Command),
			zap.String("error", resp.Error))
	}
	c.JSON(http.StatusOK, resp)
}

// ListWorkflows returns every tracked workflow, optionally filtered by ?status=.
// GET /api/v1/workflows
func (h *Handler) ListWorkflows(c *gin.Context) {
	all := h.service.ListWorkflows()

	status := v1.WorkflowStatus(c.Query("status"))
	workflows := make([]v1.WorkflowExecution, 0, len(all))
	for _, w := range all {
		if status == "" || w.Status == status {
			workflows = append(workflows, w)
		}
	}

	c.JSON(http.StatusOK, WorkflowListResponse{Workflows: workflows, Total: len(workflows)})
}

// GetWorkflow returns one workflow.
// GET /api/v1/workflows/:workflowId
func (h *Handler) GetWorkflow(c *gin.Context) {
	exec, err := h.service.GetWorkflow(c.Param("workflowId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, exec)
}

// CancelWorkflow cancels a workflow locally and returns its snapshot.
// POST /api/v1/workflows/:workflowId/cancel
func (h *Handler) CancelWorkflow(c *gin.Context) {
	id := c.Param("workflowId")
	if err := h.service.CancelWorkflow(id); err != nil {
		_ = c.Error(err)
		return
	}
	exec, err := h.service.GetWorkflow(id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, exec)
}

// ListConnectors returns the cached status of every connector.
// GET /api/v1/connectors
func (h *Handler) ListConnectors(c *gin.Context) {
	c.JSON(http.StatusOK, ConnectorListResponse{Connectors: h.service.ConnectorStatuses()})
}
