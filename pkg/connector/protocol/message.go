// Package protocol defines the JSON messages exchanged with an external tool's
// bridge listener.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Command names understood by the tool listener
const (
	CommandPing               = "ping"
	CommandGetSceneInfo       = "get_scene_info"
	CommandApplyTexture       = "apply_texture"
	CommandCreatePrimitive    = "create_primitive"
	CommandExecuteScript      = "execute_script"
	CommandGetSelectedObjects = "get_selected_objects"
)

// Response status values
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Request is written to the tool for every command.
type Request struct {
	Command string                 `json:"command"`
	Data    map[string]interface{} `json:"data"`
}

// NewRequest builds a request, substituting an empty object for nil data.
func NewRequest(command string, data map[string]interface{}) *Request {
	if data == nil {
		data = map[string]interface{}{}
	}
	return &Request{Command: command, Data: data}
}

// Response is the tool's reply to exactly one Request.
type Response struct {
	Status  string                 `json:"status"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Message string                 `json:"message,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// OK reports whether the tool accepted the command.
func (r *Response) OK() bool {
	return r.Status == StatusSuccess
}

// ErrorMessage returns the most specific failure text the tool sent.
func (r *Response) ErrorMessage() string {
	switch {
	case r.Error != "":
		return r.Error
	case r.Message != "":
		return r.Message
	default:
		return fmt.Sprintf("remote command failed with status %q", r.Status)
	}
}

// ParseResponse decodes a reply frame.
func ParseResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
