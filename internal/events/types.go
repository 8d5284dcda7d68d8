// Package events provides event types published by the bridge.
package events

// Event types for workflows
const (
	WorkflowCreated   = "workflow.created"
	WorkflowStarted   = "workflow.started"
	WorkflowProgress  = "workflow.progress"
	WorkflowCompleted = "workflow.completed"
	WorkflowFailed    = "workflow.failed"
	WorkflowCancelled = "workflow.cancelled"
)

// Event types for connectors
const (
	ConnectorStateChanged = "connector.state_changed"
)

// Event types for the bridge itself
const (
	BridgeStateChanged = "bridge.state_changed"
)

// SubjectPrefix namespaces every subject the bridge publishes on.
const SubjectPrefix = "miktos"

// Subject returns the bus subject for an event type.
func Subject(eventType string) string {
	return SubjectPrefix + "." + eventType
}
