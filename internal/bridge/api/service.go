package api

import (
	"context"

	"github.com/miktos/bridge/internal/progress"
	v1 "github.com/miktos/bridge/pkg/api/v1"
)

// Service is the part of the bridge the HTTP layer needs. *bridge.Bridge satisfies it.
type Service interface {
	ExecuteCommand(ctx context.Context, cmd v1.Command) v1.Response
	Status() v1.BridgeStatus
	ConnectorStatuses() []v1.ConnectorStatus

	GetWorkflow(workflowID string) (v1.WorkflowExecution, error)
	ListWorkflows() []v1.WorkflowExecution
	CancelWorkflow(workflowID string) error

	ReportProgress(workflowID string, p float64)
	CompleteWorkflow(workflowID string, result map[string]interface{}) bool
	FailWorkflow(workflowID string, errMsg string) bool

	SubscribeProgress(fn progress.Callback) *progress.Subscription
	UnsubscribeProgress(sub *progress.Subscription)
}
