package connector

import (
	"context"

	apperrors "github.com/miktos/bridge/internal/common/errors"
	v1 "github.com/miktos/bridge/pkg/api/v1"
	"github.com/miktos/bridge/pkg/connector/protocol"
)

// Connector is the lifecycle surface every external tool link offers.
type Connector interface {
	Name() string
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected(ctx context.Context) bool
	SendCommand(ctx context.Context, command string, data map[string]interface{}) (*protocol.Response, error)
	Status() v1.ConnectorStatus
	OnStateChange(l StateListener)
	Close(ctx context.Context) error
}

// SceneTool is a connector to a 3D tool with scene operations.
type SceneTool interface {
	Connector
	GetSceneInfo(ctx context.Context) (map[string]interface{}, error)
	ApplyTexture(ctx context.Context, req ApplyTextureRequest) (map[string]interface{}, error)
	CreatePrimitive(ctx context.Context, req PrimitiveRequest) (map[string]interface{}, error)
	ExecuteScript(ctx context.Context, script string) (map[string]interface{}, error)
	GetSelectedObjects(ctx context.Context) ([]string, error)
}

// ApplyTextureRequest describes a texture assignment. Empty optional fields
// take the tool defaults filled in by Normalize.
type ApplyTextureRequest struct {
	ObjectName   string
	TexturePath  string
	MaterialName string
	TextureType  string
	UVUnwrap     *bool
}

// Normalize validates required fields and fills defaults.
func (r *ApplyTextureRequest) Normalize() error {
	if r.ObjectName == "" {
		return apperrors.ValidationError("object_name", "is required")
	}
	if r.TexturePath == "" {
		return apperrors.ValidationError("texture_path", "is required")
	}
	if r.MaterialName == "" {
		r.MaterialName = r.ObjectName + "_material"
	}
	if r.TextureType == "" {
		r.TextureType = "diffuse"
	}
	if r.UVUnwrap == nil {
		unwrap := true
		r.UVUnwrap = &unwrap
	}
	return nil
}

// PrimitiveRequest describes a primitive to add to the scene.
type PrimitiveRequest struct {
	Type     string
	Location []float64
	Rotation []float64
	Scale    []float64
	Name     string
}

// Normalize validates required fields and fills defaults.
func (r *PrimitiveRequest) Normalize() error {
	if r.Type == "" {
		return apperrors.ValidationError("type", "is required")
	}
	for field, v := range map[string][]float64{"location": r.Location, "rotation": r.Rotation, "scale": r.Scale} {
		if v != nil && len(v) != 3 {
			return apperrors.ValidationError(field, "must have 3 components")
		}
	}
	if r.Location == nil {
		r.Location = []float64{0, 0, 0}
	}
	if r.Rotation == nil {
		r.Rotation = []float64{0, 0, 0}
	}
	if r.Scale == nil {
		r.Scale = []float64{1, 1, 1}
	}
	return nil
}

// Tool implements SceneTool on top of a Session.
type Tool struct {
	*Session
}

// NewTool wraps a session with scene operations.
func NewTool(s *Session) *Tool {
	return &Tool{Session: s}
}

func (t *Tool) GetSceneInfo(ctx context.Context) (map[string]interface{}, error) {
	return t.Call(ctx, protocol.CommandGetSceneInfo, nil)
}

func (t *Tool) ApplyTexture(ctx context.Context, req ApplyTextureRequest) (map[string]interface{}, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}
	return t.Call(ctx, protocol.CommandApplyTexture, map[string]interface{}{
		"object_name":   req.ObjectName,
		"texture_path":  req.TexturePath,
		"material_name": req.MaterialName,
		"texture_type":  req.TextureType,
		"uv_unwrap":     *req.UVUnwrap,
	})
}

func (t *Tool) CreatePrimitive(ctx context.Context, req PrimitiveRequest) (map[string]interface{}, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}
	data := map[string]interface{}{
		"type":     req.Type,
		"location": req.Location,
		"rotation": req.Rotation,
		"scale":    req.Scale,
	}
	if req.Name != "" {
		data["name"] = req.Name
	}
	return t.Call(ctx, protocol.CommandCreatePrimitive, data)
}

func (t *Tool) ExecuteScript(ctx context.Context, script string) (map[string]interface{}, error) {
	if script == "" {
		return nil, apperrors.ValidationError("script", "is required")
	}
	return t.Call(ctx, protocol.CommandExecuteScript, map[string]interface{}{"script": script})
}

// GetSelectedObjects returns the names of the selected objects.
func (t *Tool) GetSelectedObjects(ctx context.Context) ([]string, error) {
	data, err := t.Call(ctx, protocol.CommandGetSelectedObjects, nil)
	if err != nil {
		return nil, err
	}
	raw, _ := data["objects"].([]interface{})
	names := make([]string, 0, len(raw))
	for _, v := range raw {
		if name, ok := v.(string); ok {
			names = append(names, name)
		}
	}
	return names, nil
}
