package generation

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miktos/bridge/internal/common/config"
	"github.com/miktos/bridge/internal/common/logger"
)

func newTestExecutor(t *testing.T) *StandaloneExecutor {
	e := NewStandaloneExecutor(config.GenerationConfig{
		OutputDir:     t.TempDir(),
		DefaultSteps:  20,
		DefaultCFG:    7.0,
		DefaultWidth:  512,
		DefaultHeight: 512,
	}, logger.NewNop())
	e.submitDelay = 0
	e.simpleDelay = 0
	return e
}

func TestStandaloneSubmitWritesMockOutput(t *testing.T) {
	e := newTestExecutor(t)
	assert.True(t, e.CheckConnection(context.Background()))

	id, err := e.SubmitWorkflow(context.Background(), BuildGraph(GraphParams{Prompt: "sand", Model: "sdxl"}))
	require.NoError(t, err)

	files, err := e.WaitForOutputs(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, files, 1)

	content, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(content), "Mock ComfyUI output for workflow: "+id)
	assert.Contains(t, string(content), "CLIPTextEncode")
}

func TestStandaloneUnknownPrompt(t *testing.T) {
	e := newTestExecutor(t)
	_, err := e.WaitForOutputs(context.Background(), "missing")
	assert.Error(t, err)
}

func TestStandaloneSimpleGeneration(t *testing.T) {
	e := newTestExecutor(t)

	result, err := e.ExecuteSimpleGeneration(context.Background(), SimpleRequest{Prompt: "lava", NegativePrompt: "blurry"})
	require.NoError(t, err)
	assert.Equal(t, "completed", result["status"])
	assert.Equal(t, "lava", result["prompt"])
	assert.Equal(t, "blurry", result["negative_prompt"])
	assert.NotContains(t, result, "prompt_id")
	assert.Len(t, result["output_files"], 1)
}

func TestStandaloneSimpleGenerationCancelled(t *testing.T) {
	e := newTestExecutor(t)
	e.simpleDelay = 1 << 40

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.ExecuteSimpleGeneration(ctx, SimpleRequest{Prompt: "x"})
	assert.Error(t, err)
}

func TestBuildGraph(t *testing.T) {
	g := BuildGraph(GraphParams{Model: "stable-diffusion-xl", FilenamePrefix: "texture_normal", Steps: 20, CFG: 7})

	assert.Len(t, g, 7)
	loader := g["4"].(map[string]interface{})
	assert.Equal(t, "CheckpointLoaderSimple", loader["class_type"])
	assert.Equal(t, "stable-diffusion-xl.safetensors", loader["inputs"].(map[string]interface{})["ckpt_name"])

	save := g["7"].(map[string]interface{})["inputs"].(map[string]interface{})
	assert.Equal(t, "texture_normal", save["filename_prefix"])
	assert.Equal(t, []interface{}{"6", 0}, save["images"])
}
