package bridge

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	apperrors "github.com/miktos/bridge/internal/common/errors"
	"github.com/miktos/bridge/internal/connector"
	"github.com/miktos/bridge/internal/texture"
	v1 "github.com/miktos/bridge/pkg/api/v1"
)

const workflowNameLimit = 50

var defaultTextureSize = [2]int{512, 512}

type handlers struct {
	bridge *Bridge
}

// tracked runs fn as a RUNNING workflow. fn's result completes the workflow
// and its error fails it; a workflow cancelled meanwhile keeps CANCELLED.
func (h *handlers) tracked(name string, fn func(workflowID string) (map[string]interface{}, error)) (map[string]interface{}, error) {
	b := h.bridge
	id := b.TrackWorkflow(name)
	log := b.logger.WithWorkflowID(id)

	result, err := fn(id)
	if err != nil {
		b.FailWorkflow(id, apperrors.Message(err))
		return nil, err
	}
	if !b.CompleteWorkflow(id, result) {
		log.Info("workflow finished after leaving RUNNING, result dropped")
	}
	return map[string]interface{}{
		"workflow_id": id,
		"result":      result,
	}, nil
}

func (h *handlers) textures() (*texture.Generator, error) {
	if h.bridge.textures == nil {
		return nil, apperrors.InternalError("texture generator not initialized", nil)
	}
	return h.bridge.textures, nil
}

func (h *handlers) generateTexture(ctx context.Context, p params) (map[string]interface{}, error) {
	gen, err := h.textures()
	if err != nil {
		return nil, err
	}
	var payload GenerateTextureRequest
	if err := p.decode(&payload); err != nil {
		return nil, err
	}
	req, err := payload.texture()
	if err != nil {
		return nil, err
	}

	return h.tracked("Texture: "+truncate(req.Prompt, workflowNameLimit), func(id string) (map[string]interface{}, error) {
		res, err := gen.Generate(ctx, req, func(progress float64) {
			h.bridge.ReportProgress(id, progress)
		})
		if err != nil {
			return nil, err
		}
		return res.ToMap(), nil
	})
}

func (h *handlers) generateImage(ctx context.Context, p params) (map[string]interface{}, error) {
	if h.bridge.generation == nil {
		return nil, apperrors.InternalError("generation engine not initialized", nil)
	}

	var payload GenerateImageRequest
	if err := p.decode(&payload); err != nil {
		return nil, err
	}
	req, err := payload.simple()
	if err != nil {
		return nil, err
	}

	return h.tracked("Image: "+truncate(req.Prompt, workflowNameLimit), func(id string) (map[string]interface{}, error) {
		result, err := h.bridge.generation.ExecuteSimpleGeneration(ctx, req)
		if err != nil {
			return nil, err
		}
		if status, _ := result["status"].(string); status == "failed" {
			msg, _ := result["error"].(string)
			return nil, apperrors.RemoteExecution("image generation failed: " + msg)
		}
		return result, nil
	})
}

// applyStyle generates a diffuse map for prompt in the given style and
// assigns it to an object in the connected tool.
func (h *handlers) applyStyle(ctx context.Context, p params) (map[string]interface{}, error) {
	gen, err := h.textures()
	if err != nil {
		return nil, err
	}
	var req ApplyStyleRequest
	if err := p.decode(&req); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	width, height, err := req.dimensions()
	if err != nil {
		return nil, err
	}
	tool, err := h.connectedTool(ctx, req.name())
	if err != nil {
		return nil, err
	}
	objectName, style := req.ObjectName, req.Style

	name := fmt.Sprintf("Style: %s -> %s", truncate(style, workflowNameLimit), objectName)
	return h.tracked(name, func(id string) (map[string]interface{}, error) {
		res, err := gen.Generate(ctx, texture.Request{
			Prompt: fmt.Sprintf("%s, %s style", req.Prompt, style),
			Width:  width,
			Height: height,
			Maps:   []string{texture.MapDiffuse},
		}, func(progress float64) {
			h.bridge.ReportProgress(id, progress*0.9)
		})
		if err != nil {
			return nil, err
		}

		diffuse, ok := res.OutputPaths[texture.MapDiffuse]
		if !ok {
			return nil, apperrors.RemoteExecution("no diffuse map was generated for style " + style)
		}

		applied, err := tool.ApplyTexture(ctx, connector.ApplyTextureRequest{
			ObjectName:  objectName,
			TexturePath: diffuse,
			TextureType: texture.MapDiffuse,
		})
		if err != nil {
			return nil, err
		}
		h.bridge.ReportProgress(id, 1.0)

		return map[string]interface{}{
			"object_name":  objectName,
			"style":        style,
			"texture_path": diffuse,
			"texture":      res.ToMap(),
			"applied":      applied,
		}, nil
	})
}

// executeWorkflow submits a caller-supplied node graph to the generation engine.
func (h *handlers) executeWorkflow(ctx context.Context, p params) (map[string]interface{}, error) {
	engine := h.bridge.generation
	if engine == nil {
		return nil, apperrors.InternalError("generation engine not initialized", nil)
	}
	req := ExecuteWorkflowRequest{Name: "custom"}
	if err := p.decode(&req); err != nil {
		return nil, err
	}
	if len(req.Workflow) == 0 {
		return nil, apperrors.ValidationError("workflow", "no workflow data provided")
	}
	graph, name := req.Workflow, req.Name

	return h.tracked("Workflow: "+truncate(name, workflowNameLimit), func(id string) (map[string]interface{}, error) {
		promptID, err := engine.SubmitWorkflow(ctx, graph)
		if err != nil {
			return nil, err
		}
		h.bridge.ReportProgress(id, 0.5)

		files, err := engine.WaitForOutputs(ctx, promptID)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"prompt_id":    promptID,
			"output_files": files,
		}, nil
	})
}

func (h *handlers) getWorkflowStatus(_ context.Context, p params) (map[string]interface{}, error) {
	var req WorkflowIDRequest
	if err := p.decode(&req); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	id := req.WorkflowID
	exec, err := h.bridge.GetWorkflow(id)
	if err != nil {
		return nil, err
	}
	return toMap(exec), nil
}

func (h *handlers) cancelWorkflow(_ context.Context, p params) (map[string]interface{}, error) {
	var req WorkflowIDRequest
	if err := p.decode(&req); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	id := req.WorkflowID
	if err := h.bridge.CancelWorkflow(id); err != nil {
		return nil, err
	}
	exec, _ := h.bridge.GetWorkflow(id)
	return map[string]interface{}{
		"workflow_id": id,
		"status":      string(exec.Status),
		"message":     fmt.Sprintf("Workflow %s cancelled", id),
	}, nil
}

// lookupTool resolves a connector by name.
func (h *handlers) lookupTool(name string) (connector.SceneTool, error) {
	tool, ok := h.bridge.Connector(name)
	if !ok {
		return nil, apperrors.NotFound("connector", name)
	}
	return tool, nil
}

// connectedTool resolves the connector and connects it on first use.
func (h *handlers) connectedTool(ctx context.Context, name string) (connector.SceneTool, error) {
	tool, err := h.lookupTool(name)
	if err != nil {
		return nil, err
	}
	if !tool.Status().Connected {
		h.bridge.logger.Info("connecting connector on demand", zap.String("connector", tool.Name()))
		if err := tool.Connect(ctx); err != nil {
			return nil, err
		}
	}
	return tool, nil
}

func (h *handlers) getSceneInfo(ctx context.Context, p params) (map[string]interface{}, error) {
	var req connectorParam
	if err := p.decode(&req); err != nil {
		return nil, err
	}
	tool, err := h.connectedTool(ctx, req.name())
	if err != nil {
		return nil, err
	}
	return tool.GetSceneInfo(ctx)
}

func (h *handlers) applyTexture(ctx context.Context, p params) (map[string]interface{}, error) {
	var payload ApplyTextureRequest
	if err := p.decode(&payload); err != nil {
		return nil, err
	}
	req, err := payload.tool()
	if err != nil {
		return nil, err
	}

	tool, err := h.connectedTool(ctx, payload.name())
	if err != nil {
		return nil, err
	}
	return tool.ApplyTexture(ctx, req)
}

func (h *handlers) createPrimitive(ctx context.Context, p params) (map[string]interface{}, error) {
	var payload CreatePrimitiveRequest
	if err := p.decode(&payload); err != nil {
		return nil, err
	}
	req, err := payload.tool()
	if err != nil {
		return nil, err
	}

	tool, err := h.connectedTool(ctx, payload.name())
	if err != nil {
		return nil, err
	}
	return tool.CreatePrimitive(ctx, req)
}

func (h *handlers) executeScript(ctx context.Context, p params) (map[string]interface{}, error) {
	var req ExecuteScriptRequest
	if err := p.decode(&req); err != nil {
		return nil, err
	}
	if req.Script == "" {
		return nil, apperrors.ValidationError("script", "is required")
	}
	tool, err := h.connectedTool(ctx, req.name())
	if err != nil {
		return nil, err
	}
	return tool.ExecuteScript(ctx, req.Script)
}

func (h *handlers) getSelectedObjects(ctx context.Context, p params) (map[string]interface{}, error) {
	var req connectorParam
	if err := p.decode(&req); err != nil {
		return nil, err
	}
	tool, err := h.connectedTool(ctx, req.name())
	if err != nil {
		return nil, err
	}
	names, err := tool.GetSelectedObjects(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"objects": names}, nil
}

// getConnectorStatus reports cached connector state. With "ping": true the
// named connector is probed live first.
func (h *handlers) getConnectorStatus(ctx context.Context, p params) (map[string]interface{}, error) {
	var req ConnectorStatusRequest
	if err := p.decode(&req); err != nil {
		return nil, err
	}

	if req.Connector == "" {
		return map[string]interface{}{"connectors": toStatusList(h.bridge.ConnectorStatuses())}, nil
	}

	tool, err := h.lookupTool(req.Connector)
	if err != nil {
		return nil, err
	}
	if req.Ping {
		tool.IsConnected(ctx)
	}
	return toMap(tool.Status()), nil
}

func toStatusList(statuses []v1.ConnectorStatus) []interface{} {
	out := make([]interface{}, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, toMap(s))
	}
	return out
}
