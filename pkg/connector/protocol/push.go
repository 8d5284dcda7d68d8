package protocol

import (
	"encoding/json"
	"time"
)

// PushType is the kind of unsolicited message a tool sends to the bridge's
// inbound endpoint.
type PushType string

const (
	PushTypeProgress  PushType = "progress"
	PushTypeResult    PushType = "result"
	PushTypeError     PushType = "error"
	PushTypeHeartbeat PushType = "heartbeat"
)

// Push is an unsolicited message from a tool, optionally tied to a workflow.
type Push struct {
	Type       PushType               `json:"type"`
	Timestamp  time.Time              `json:"timestamp"`
	WorkflowID string                 `json:"workflow_id,omitempty"`
	Progress   float64                `json:"progress,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// ParsePush decodes a pushed frame and stamps it when the tool omitted a timestamp.
func ParsePush(data []byte) (*Push, error) {
	var p Push
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now().UTC()
	}
	return &p, nil
}

// NewProgressPush creates a progress push for a workflow.
func NewProgressPush(workflowID string, progress float64) *Push {
	return &Push{
		Type:       PushTypeProgress,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		Progress:   progress,
	}
}
