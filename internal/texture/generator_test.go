package texture

import (
	"context"
	"encoding/json"
	"image/png"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miktos/bridge/internal/common/config"
	apperrors "github.com/miktos/bridge/internal/common/errors"
	"github.com/miktos/bridge/internal/common/logger"
	"github.com/miktos/bridge/internal/generation"
)

type fakeEngine struct {
	online    bool
	submitErr error
	graphs    []map[string]interface{}
}

func (f *fakeEngine) CheckConnection(context.Context) bool { return f.online }

func (f *fakeEngine) SubmitWorkflow(_ context.Context, graph map[string]interface{}) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.graphs = append(f.graphs, graph)
	return "p", nil
}

func (f *fakeEngine) WaitForOutputs(context.Context, string) ([]string, error) {
	return []string{"out.png"}, nil
}

func (f *fakeEngine) ExecuteSimpleGeneration(context.Context, generation.SimpleRequest) (map[string]interface{}, error) {
	return map[string]interface{}{"status": "completed"}, nil
}

func testConfig(t *testing.T) config.GenerationConfig {
	return config.GenerationConfig{
		OutputDir:     t.TempDir(),
		Model:         "stable-diffusion-xl",
		DefaultSteps:  20,
		DefaultCFG:    7.0,
		DefaultWidth:  64,
		DefaultHeight: 64,
	}
}

func TestGenerateProgressSequence(t *testing.T) {
	engine := &fakeEngine{online: true}
	g := NewGenerator(engine, testConfig(t), logger.NewNop())

	var reported []float64
	res, err := g.Generate(context.Background(), Request{Prompt: "red brick wall"}, func(p float64) {
		reported = append(reported, p)
	})
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{0, 0.8 / 3, 1.6 / 3, 0.9, 1.0}, reported, 1e-9)
	assert.Equal(t, map[string]string{"diffuse": "out.png", "normal": "out.png", "roughness": "out.png"}, res.OutputPaths)
	require.Len(t, engine.graphs, 3)

	normal := engine.graphs[1]["1"].(map[string]interface{})["inputs"].(map[string]interface{})
	assert.Equal(t, "red brick wall, normal map, surface details, purple and blue tones", normal["text"])
	save := engine.graphs[2]["7"].(map[string]interface{})["inputs"].(map[string]interface{})
	assert.Equal(t, "texture_roughness", save["filename_prefix"])
}

func TestGenerateWritesMetadata(t *testing.T) {
	g := NewGenerator(&fakeEngine{online: true}, testConfig(t), logger.NewNop())

	res, err := g.Generate(context.Background(), Request{Prompt: "oak", Maps: []string{MapDiffuse}, Width: 128, Height: 256}, nil)
	require.NoError(t, err)

	raw, err := os.ReadFile(res.MetadataPath)
	require.NoError(t, err)
	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, res.JobID, meta["job_id"])
	assert.Equal(t, []interface{}{128.0, 256.0}, meta["size"])
	assert.Equal(t, "stable-diffusion-xl", meta["model_name"])

	m := res.ToMap()
	assert.Equal(t, res.JobID, m["job_id"])
	assert.Equal(t, map[string]interface{}{"diffuse": "out.png"}, m["output_paths"])
}

func TestGeneratePlaceholderWhenOffline(t *testing.T) {
	cfg := testConfig(t)
	g := NewGenerator(&fakeEngine{online: false}, cfg, logger.NewNop())

	res, err := g.Generate(context.Background(), Request{Prompt: "steel", Maps: []string{MapNormal, MapMetallic}}, nil)
	require.NoError(t, err)

	path := res.OutputPaths[MapNormal]
	assert.Equal(t, PlaceholderPath(cfg.OutputDir, res.JobID, MapNormal), path)
	assert.Equal(t, []string{MapNormal, MapMetallic}, res.Metadata.Placeholders)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
}

func TestGenerateNilClientUsesPlaceholders(t *testing.T) {
	g := NewGenerator(nil, testConfig(t), logger.NewNop())

	res, err := g.Generate(context.Background(), Request{Prompt: "sand"}, nil)
	require.NoError(t, err)
	assert.Len(t, res.OutputPaths, 3)
}

func TestGenerateMapFailureIsNotFatal(t *testing.T) {
	g := NewGenerator(&fakeEngine{online: true, submitErr: apperrors.RemoteExecution("bad graph")}, testConfig(t), logger.NewNop())

	res, err := g.Generate(context.Background(), Request{Prompt: "glass", Maps: []string{MapDiffuse}}, nil)
	require.NoError(t, err)
	assert.Empty(t, res.OutputPaths)
	assert.Equal(t, "bad graph", res.Metadata.Failed[MapDiffuse])
}

func TestGenerateValidation(t *testing.T) {
	g := NewGenerator(nil, testConfig(t), logger.NewNop())

	_, err := g.Generate(context.Background(), Request{}, nil)
	assert.True(t, apperrors.IsValidation(err))

	_, err = g.Generate(context.Background(), Request{Prompt: "x", Maps: []string{"specular"}}, nil)
	assert.True(t, apperrors.IsValidation(err))
}

func TestGenerateCancelled(t *testing.T) {
	g := NewGenerator(nil, testConfig(t), logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Generate(ctx, Request{Prompt: "x"}, nil)
	assert.Error(t, err)
}

func TestAdjustPrompt(t *testing.T) {
	assert.Equal(t, "moss", AdjustPrompt("moss", MapDiffuse))
	assert.Equal(t, "moss, height map, displacement, grayscale", AdjustPrompt("moss", MapHeight))
	assert.ElementsMatch(t, SupportedMaps(), []string{"diffuse", "normal", "roughness", "metallic", "height", "ambient_occlusion"})
}
