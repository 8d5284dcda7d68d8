package bridge

import (
	apperrors "github.com/miktos/bridge/internal/common/errors"
	"github.com/miktos/bridge/internal/connector"
	"github.com/miktos/bridge/internal/generation"
	"github.com/miktos/bridge/internal/texture"
)

// connectorParam selects the target tool of a connector command.
type connectorParam struct {
	Connector string `json:"connector,omitempty"`
}

func (c connectorParam) name() string {
	if c.Connector == "" {
		return connector.BlenderName
	}
	return c.Connector
}

// sizeParam reads a [width, height] pair.
type sizeParam struct {
	Size []int `json:"size,omitempty"`
}

func (s sizeParam) dimensions() (int, int, error) {
	if s.Size == nil {
		return defaultTextureSize[0], defaultTextureSize[1], nil
	}
	if len(s.Size) != 2 {
		return 0, 0, apperrors.ValidationError("size", "must be [width, height]")
	}
	if s.Size[0] <= 0 || s.Size[1] <= 0 {
		return 0, 0, apperrors.ValidationError("size", "dimensions must be positive integers")
	}
	return s.Size[0], s.Size[1], nil
}

// GenerateTextureRequest is the payload for generate_texture.
type GenerateTextureRequest struct {
	sizeParam
	Prompt         string   `json:"prompt"`
	NegativePrompt string   `json:"negative_prompt,omitempty"`
	Maps           []string `json:"maps,omitempty"`
	Steps          int      `json:"steps,omitempty"`
	CFG            float64  `json:"cfg,omitempty"`
	Model          string   `json:"model,omitempty"`
}

func (r GenerateTextureRequest) texture() (texture.Request, error) {
	if r.Prompt == "" {
		return texture.Request{}, apperrors.ValidationError("prompt", "is required")
	}
	w, h, err := r.dimensions()
	if err != nil {
		return texture.Request{}, err
	}
	return texture.Request{
		Prompt:         r.Prompt,
		NegativePrompt: r.NegativePrompt,
		Width:          w,
		Height:         h,
		Maps:           r.Maps,
		Steps:          r.Steps,
		CFG:            r.CFG,
		Model:          r.Model,
	}, nil
}

// GenerateImageRequest is the payload for generate_image.
type GenerateImageRequest struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	Steps          int     `json:"steps,omitempty"`
	CFG            float64 `json:"cfg,omitempty"`
	Width          int     `json:"width,omitempty"`
	Height         int     `json:"height,omitempty"`
}

func (r GenerateImageRequest) simple() (generation.SimpleRequest, error) {
	if r.Prompt == "" {
		return generation.SimpleRequest{}, apperrors.ValidationError("prompt", "is required")
	}
	return generation.SimpleRequest{
		Prompt:         r.Prompt,
		NegativePrompt: r.NegativePrompt,
		Steps:          r.Steps,
		CFG:            r.CFG,
		Width:          r.Width,
		Height:         r.Height,
	}, nil
}

// ApplyStyleRequest is the payload for apply_style. Prompt defaults to the object name.
type ApplyStyleRequest struct {
	connectorParam
	sizeParam
	ObjectName string `json:"object_name"`
	Style      string `json:"style"`
	Prompt     string `json:"prompt,omitempty"`
}

func (r *ApplyStyleRequest) validate() error {
	if r.ObjectName == "" {
		return apperrors.ValidationError("object_name", "is required")
	}
	if r.Style == "" {
		return apperrors.ValidationError("style", "is required")
	}
	if r.Prompt == "" {
		r.Prompt = r.ObjectName
	}
	return nil
}

// ExecuteWorkflowRequest is the payload for execute_workflow.
type ExecuteWorkflowRequest struct {
	Workflow map[string]interface{} `json:"workflow"`
	Name     string                 `json:"name,omitempty"`
}

// WorkflowIDRequest is the payload for get_workflow_status and cancel_workflow.
type WorkflowIDRequest struct {
	WorkflowID string `json:"workflow_id"`
}

func (r WorkflowIDRequest) validate() error {
	if r.WorkflowID == "" {
		return apperrors.ValidationError("workflow_id", "is required")
	}
	return nil
}

// ApplyTextureRequest is the payload for apply_texture.
type ApplyTextureRequest struct {
	connectorParam
	ObjectName   string `json:"object_name"`
	TexturePath  string `json:"texture_path"`
	MaterialName string `json:"material_name,omitempty"`
	TextureType  string `json:"texture_type,omitempty"`
	UVUnwrap     *bool  `json:"uv_unwrap,omitempty"`
}

func (r ApplyTextureRequest) tool() (connector.ApplyTextureRequest, error) {
	if r.ObjectName == "" {
		return connector.ApplyTextureRequest{}, apperrors.ValidationError("object_name", "is required")
	}
	if r.TexturePath == "" {
		return connector.ApplyTextureRequest{}, apperrors.ValidationError("texture_path", "is required")
	}
	return connector.ApplyTextureRequest{
		ObjectName:   r.ObjectName,
		TexturePath:  r.TexturePath,
		MaterialName: r.MaterialName,
		TextureType:  r.TextureType,
		UVUnwrap:     r.UVUnwrap,
	}, nil
}

// CreatePrimitiveRequest is the payload for create_primitive.
type CreatePrimitiveRequest struct {
	connectorParam
	Type     string    `json:"type"`
	Name     string    `json:"name,omitempty"`
	Location []float64 `json:"location,omitempty"`
	Rotation []float64 `json:"rotation,omitempty"`
	Scale    []float64 `json:"scale,omitempty"`
}

func (r CreatePrimitiveRequest) tool() (connector.PrimitiveRequest, error) {
	if r.Type == "" {
		return connector.PrimitiveRequest{}, apperrors.ValidationError("type", "is required")
	}
	return connector.PrimitiveRequest{
		Type:     r.Type,
		Name:     r.Name,
		Location: r.Location,
		Rotation: r.Rotation,
		Scale:    r.Scale,
	}, nil
}

// ExecuteScriptRequest is the payload for execute_script.
type ExecuteScriptRequest struct {
	connectorParam
	Script string `json:"script"`
}

// ConnectorStatusRequest is the payload for get_connector_status. Without a
// connector name every connector is listed.
type ConnectorStatusRequest struct {
	Connector string `json:"connector,omitempty"`
	Ping      bool   `json:"ping,omitempty"`
}
