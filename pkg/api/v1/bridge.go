package v1

import "time"

// CommandKind names one of the commands the bridge knows how to execute.
type CommandKind string

const (
	CommandGenerateTexture    CommandKind = "generate_texture"
	CommandGenerateImage      CommandKind = "generate_image"
	CommandApplyStyle         CommandKind = "apply_style"
	CommandExecuteWorkflow    CommandKind = "execute_workflow"
	CommandGetWorkflowStatus  CommandKind = "get_workflow_status"
	CommandCancelWorkflow     CommandKind = "cancel_workflow"
	CommandGetSceneInfo       CommandKind = "get_scene_info"
	CommandApplyTexture       CommandKind = "apply_texture"
	CommandCreatePrimitive    CommandKind = "create_primitive"
	CommandExecuteScript      CommandKind = "execute_script"
	CommandGetSelectedObjects CommandKind = "get_selected_objects"
	CommandGetConnectorStatus CommandKind = "get_connector_status"
)

// CommandKinds lists every known command in a stable order.
var CommandKinds = []CommandKind{
	CommandGenerateTexture,
	CommandGenerateImage,
	CommandApplyStyle,
	CommandExecuteWorkflow,
	CommandGetWorkflowStatus,
	CommandCancelWorkflow,
	CommandGetSceneInfo,
	CommandApplyTexture,
	CommandCreatePrimitive,
	CommandExecuteScript,
	CommandGetSelectedObjects,
	CommandGetConnectorStatus,
}

// ParseCommandKind resolves a command name. ok is false for unknown names.
func ParseCommandKind(name string) (kind CommandKind, ok bool) {
	for _, k := range CommandKinds {
		if string(k) == name {
			return k, true
		}
	}
	return "", false
}

// Command is a caller-issued instruction. It is not modified once dispatched.
type Command struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"command"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
	RequesterID string                 `json:"requester_id,omitempty"`
}

// Response is the uniform outcome of a command. Exactly one of Result or
// Error is meaningful, selected by Success.
type Response struct {
	ID                  string                 `json:"id"`
	Success             bool                   `json:"success"`
	Result              map[string]interface{} `json:"result,omitempty"`
	Error               string                 `json:"error,omitempty"`
	Timestamp           time.Time              `json:"timestamp"`
	ExecutionDurationMs *int64                 `json:"execution_duration_ms,omitempty"`
}

// WorkflowStatus represents the lifecycle state of a workflow execution
type WorkflowStatus string

const (
	WorkflowStatusPending   WorkflowStatus = "PENDING"
	WorkflowStatusRunning   WorkflowStatus = "RUNNING"
	WorkflowStatusCompleted WorkflowStatus = "COMPLETED"
	WorkflowStatusFailed    WorkflowStatus = "FAILED"
	WorkflowStatusCancelled WorkflowStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s WorkflowStatus) IsTerminal() bool {
	switch s {
	case WorkflowStatusCompleted, WorkflowStatusFailed, WorkflowStatusCancelled:
		return true
	case WorkflowStatusPending, WorkflowStatusRunning:
		return false
	}
	return false
}

// WorkflowExecution is a snapshot of one tracked unit of generation work.
type WorkflowExecution struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Status    WorkflowStatus         `json:"status"`
	Progress  float64                `json:"progress"`
	StartTime time.Time              `json:"start_time"`
	EndTime   *time.Time             `json:"end_time,omitempty"`
	Result    map[string]interface{} `json:"result,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// ConnectorState represents the link state of an external tool connector
type ConnectorState string

const (
	ConnectorStateDisconnected ConnectorState = "DISCONNECTED"
	ConnectorStateConnecting   ConnectorState = "CONNECTING"
	ConnectorStateConnected    ConnectorState = "CONNECTED"
	ConnectorStateError        ConnectorState = "ERROR"
)

// ConnectorStatus is a snapshot of one connector session.
type ConnectorStatus struct {
	Name      string         `json:"name"`
	State     ConnectorState `json:"state"`
	Connected bool           `json:"connected"`
	LastError string         `json:"last_error,omitempty"`
}

// BridgeState represents the readiness of the bridge
type BridgeState string

const (
	BridgeStateInitializing BridgeState = "INITIALIZING"
	BridgeStateReady        BridgeState = "READY"
	BridgeStateBusy         BridgeState = "BUSY"
	BridgeStateError        BridgeState = "ERROR"
	BridgeStateShutdown     BridgeState = "SHUTDOWN"
)

// BridgeStatus summarizes the bridge for status endpoints.
type BridgeStatus struct {
	State               BridgeState       `json:"state"`
	GenerationConnected bool              `json:"generation_connected"`
	ActiveWorkflows     int               `json:"active_workflows"`
	TotalWorkflows      int               `json:"total_workflows"`
	Connectors          []ConnectorStatus `json:"connectors"`
	UptimeSeconds       float64           `json:"uptime_seconds"`
	LastError           string            `json:"last_error,omitempty"`
	// TextureMaps and Models list what generate_texture accepts.
	TextureMaps []string `json:"texture_maps"`
	Models      []string `json:"models"`
}

// ProgressUpdate is pushed to progress stream clients.
type ProgressUpdate struct {
	WorkflowID string         `json:"workflow_id"`
	Progress   float64        `json:"progress"`
	Status     WorkflowStatus `json:"status,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}
