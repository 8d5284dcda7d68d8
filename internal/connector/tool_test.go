package connector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miktos/bridge/internal/common/config"
	apperrors "github.com/miktos/bridge/internal/common/errors"
	"github.com/miktos/bridge/internal/common/logger"
	"github.com/miktos/bridge/internal/connector/docker"
	"github.com/miktos/bridge/pkg/connector/protocol"
)

func connectedTool(t *testing.T, ft *fakeTool) *Tool {
	return NewTool(connected(t, ft))
}

func TestApplyTextureDefaults(t *testing.T) {
	ft := startFakeTool(t, echo)
	tool := connectedTool(t, ft)

	_, err := tool.ApplyTexture(context.Background(), ApplyTextureRequest{
		ObjectName:  "Cube",
		TexturePath: "/tmp/brick_diffuse.png",
	})
	require.NoError(t, err)

	reqs := ft.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, protocol.CommandApplyTexture, reqs[0].Command)
	assert.Equal(t, map[string]interface{}{
		"object_name":   "Cube",
		"texture_path":  "/tmp/brick_diffuse.png",
		"material_name": "Cube_material",
		"texture_type":  "diffuse",
		"uv_unwrap":     true,
	}, reqs[0].Data)
}

func TestApplyTextureValidation(t *testing.T) {
	ft := startFakeTool(t, echo)
	tool := connectedTool(t, ft)

	_, err := tool.ApplyTexture(context.Background(), ApplyTextureRequest{ObjectName: "Cube"})

	assert.True(t, apperrors.IsValidation(err))
	assert.Empty(t, ft.requests())
}

func TestCreatePrimitive(t *testing.T) {
	ft := startFakeTool(t, echo)
	tool := connectedTool(t, ft)

	t.Run("defaults", func(t *testing.T) {
		_, err := tool.CreatePrimitive(context.Background(), PrimitiveRequest{Type: "cube"})
		require.NoError(t, err)

		reqs := ft.requests()
		data := reqs[len(reqs)-1].Data
		assert.Equal(t, "cube", data["type"])
		assert.Equal(t, []interface{}{0.0, 0.0, 0.0}, data["location"])
		assert.Equal(t, []interface{}{1.0, 1.0, 1.0}, data["scale"])
		assert.NotContains(t, data, "name")
	})

	t.Run("bad vector", func(t *testing.T) {
		_, err := tool.CreatePrimitive(context.Background(), PrimitiveRequest{Type: "cube", Scale: []float64{1, 2}})
		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestExecuteScriptRequiresScript(t *testing.T) {
	ft := startFakeTool(t, echo)
	tool := connectedTool(t, ft)

	_, err := tool.ExecuteScript(context.Background(), "")
	assert.True(t, apperrors.IsValidation(err))

	_, err = tool.ExecuteScript(context.Background(), "import bpy")
	require.NoError(t, err)
	assert.Equal(t, "import bpy", ft.requests()[0].Data["script"])
}

func TestGetSelectedObjects(t *testing.T) {
	ft := startFakeTool(t, func(req protocol.Request) (*protocol.Response, time.Duration) {
		return &protocol.Response{
			Status: protocol.StatusSuccess,
			Data:   map[string]interface{}{"objects": []string{"Cube", "Light"}},
		}, 0
	})
	tool := connectedTool(t, ft)

	names, err := tool.GetSelectedObjects(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Cube", "Light"}, names)
}

type fakeRunner struct {
	cfg     docker.ContainerConfig
	stopped []string
	removed []string
}

func (r *fakeRunner) RunContainer(ctx context.Context, cfg docker.ContainerConfig) (string, error) {
	r.cfg = cfg
	return "c-123", nil
}

func (r *fakeRunner) StopContainer(ctx context.Context, id string, timeout time.Duration) error {
	r.stopped = append(r.stopped, id)
	return nil
}

func (r *fakeRunner) RemoveContainer(ctx context.Context, id string, force bool) error {
	r.removed = append(r.removed, id)
	return nil
}

func TestDockerLauncher(t *testing.T) {
	runner := &fakeRunner{}
	l := NewDockerLauncher(runner, docker.ContainerConfig{Name: "miktos-blender", Image: "blender:4"}, logger.NewNop())

	proc, err := l.Launch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "host", runner.cfg.NetworkMode)
	assert.Equal(t, "container c-123", proc.String())

	require.NoError(t, proc.Stop(context.Background()))
	assert.Equal(t, []string{"c-123"}, runner.stopped)
	assert.Equal(t, []string{"c-123"}, runner.removed)
}

func TestProcessLauncherMissingExecutable(t *testing.T) {
	l := NewProcessLauncher("/nonexistent/blender-for-tests", BlenderArgs("addon.py"), logger.NewNop())

	_, err := l.Launch(context.Background())
	assert.Error(t, err)
}

func TestNewBlender(t *testing.T) {
	runner := &fakeRunner{}
	tool := NewBlender(config.ConnectorConfig{
		Host:           "localhost",
		Port:           9999,
		ScriptPath:     "./blender_addon/miktos_bridge.py",
		LaunchMode:     "docker",
		DockerImage:    "miktos/blender-addon:latest",
		CommandTimeout: 3 * time.Second,
	}, runner, logger.NewNop())

	assert.Equal(t, BlenderName, tool.Name())
	assert.Equal(t, 3*time.Second, tool.cfg.CommandTimeout)
	assert.Equal(t, 30*time.Second, tool.cfg.ConnectionTimeout)
	assert.Equal(t, "Blender", tool.cfg.DisplayName)
	require.IsType(t, &DockerLauncher{}, tool.launcher)

	_, err := tool.launcher.Launch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"blender", "--background", "--python", "/addon/miktos_bridge.py"}, runner.cfg.Cmd)
}
