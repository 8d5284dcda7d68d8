package api

import (
	v1 "github.com/miktos/bridge/pkg/api/v1"
)

// CommandRequest is the body of POST /api/v1/commands.
type CommandRequest struct {
	ID          string                 `json:"id"`
	Command     string                 `json:"command" binding:"required"`
	Parameters  map[string]interface{} `json:"parameters"`
	RequesterID string                 `json:"requester_id"`
}

// WorkflowListResponse is the body of GET /api/v1/workflows.
type WorkflowListResponse struct {
	Workflows []v1.WorkflowExecution `json:"workflows"`
	Total     int                    `json:"total"`
}

// ConnectorListResponse is the body of GET /api/v1/connectors.
type ConnectorListResponse struct {
	Connectors []v1.ConnectorStatus `json:"connectors"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string         `json:"status"`
	State  v1.BridgeState `json:"state"`
}
