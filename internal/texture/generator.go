// Package texture generates PBR texture map sets through the generation engine.
package texture

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/miktos/bridge/internal/common/config"
	apperrors "github.com/miktos/bridge/internal/common/errors"
	"github.com/miktos/bridge/internal/common/logger"
	"github.com/miktos/bridge/internal/generation"
)

// Map types.
const (
	MapDiffuse          = "diffuse"
	MapNormal           = "normal"
	MapRoughness        = "roughness"
	MapMetallic         = "metallic"
	MapHeight           = "height"
	MapAmbientOcclusion = "ambient_occlusion"
)

var supportedMaps = []string{MapDiffuse, MapNormal, MapRoughness, MapMetallic, MapHeight, MapAmbientOcclusion}

var promptSuffix = map[string]string{
	MapDiffuse:          "",
	MapNormal:           ", normal map, surface details, purple and blue tones",
	MapRoughness:        ", roughness map, surface roughness, grayscale",
	MapMetallic:         ", metallic map, metal reflectance, grayscale",
	MapHeight:           ", height map, displacement, grayscale",
	MapAmbientOcclusion: ", ambient occlusion, shadow detail, grayscale",
}

// SupportedMaps lists every map type the generator accepts.
func SupportedMaps() []string {
	return append([]string(nil), supportedMaps...)
}

// DefaultMaps is used when a request names no maps.
func DefaultMaps() []string {
	return []string{MapDiffuse, MapNormal, MapRoughness}
}

// AvailableModels lists the checkpoints the generator knows how to address.
func AvailableModels() []string {
	return []string{"stable-diffusion-xl", "stable-diffusion-v1-5", "dreamshaper", "realistic-vision"}
}

// AdjustPrompt specialises prompt for one map type.
func AdjustPrompt(prompt, mapType string) string {
	return prompt + promptSuffix[mapType]
}

// Request describes one texture set.
type Request struct {
	Prompt         string
	NegativePrompt string
	Width          int
	Height         int
	Maps           []string
	Steps          int
	CFG            float64
	Model          string
}

// ProgressFunc receives the fraction of the set completed so far.
type ProgressFunc func(progress float64)

// Metadata is written next to the generated maps.
type Metadata struct {
	JobID          string            `json:"job_id"`
	Prompt         string            `json:"prompt"`
	NegativePrompt string            `json:"negative_prompt"`
	Size           [2]int            `json:"size"`
	Maps           []string          `json:"maps"`
	Steps          int               `json:"steps"`
	CFG            float64           `json:"cfg"`
	ModelName      string            `json:"model_name"`
	GeneratedAt    time.Time         `json:"generated_at"`
	OutputPaths    map[string]string `json:"output_paths"`
	Placeholders   []string          `json:"placeholders,omitempty"`
	Failed         map[string]string `json:"failed,omitempty"`
}

// Result is the outcome of one Generate call.
type Result struct {
	JobID        string
	OutputPaths  map[string]string
	Metadata     Metadata
	MetadataPath string
}

// ToMap renders the result as a command result payload.
func (r *Result) ToMap() map[string]interface{} {
	raw, _ := json.Marshal(r.Metadata)
	var metadata map[string]interface{}
	_ = json.Unmarshal(raw, &metadata)

	paths := make(map[string]interface{}, len(r.OutputPaths))
	for k, v := range r.OutputPaths {
		paths[k] = v
	}
	return map[string]interface{}{
		"success":       true,
		"job_id":        r.JobID,
		"output_paths":  paths,
		"metadata":      metadata,
		"metadata_path": r.MetadataPath,
	}
}

// Generator produces texture sets. When the engine is unreachable each map
// is replaced by a locally drawn placeholder.
type Generator struct {
	client generation.Client
	cfg    config.GenerationConfig
	logger *logger.Logger
}

// NewGenerator creates a generator writing under cfg.OutputDir. client may be nil.
func NewGenerator(client generation.Client, cfg config.GenerationConfig, log *logger.Logger) *Generator {
	return &Generator{
		client: client,
		cfg:    cfg,
		logger: log.WithComponent("texture-generator"),
	}
}

func (g *Generator) normalize(req Request) (Request, error) {
	if req.Prompt == "" {
		return req, apperrors.ValidationError("prompt", "is required")
	}
	if len(req.Maps) == 0 {
		req.Maps = DefaultMaps()
	}
	for _, m := range req.Maps {
		if _, ok := promptSuffix[m]; !ok {
			return req, apperrors.ValidationError("maps", fmt.Sprintf("unsupported map type %q", m))
		}
	}
	if req.Width <= 0 {
		req.Width = g.cfg.DefaultWidth
	}
	if req.Height <= 0 {
		req.Height = g.cfg.DefaultHeight
	}
	if req.Steps <= 0 {
		req.Steps = g.cfg.DefaultSteps
	}
	if req.CFG <= 0 {
		req.CFG = g.cfg.DefaultCFG
	}
	if req.Model == "" {
		req.Model = g.cfg.Model
	}
	return req, nil
}

// Generate renders every requested map, reporting i/len*0.8 before map i,
// 0.9 after the last map and 1.0 once the metadata file is written. A map
// that fails is logged and left out of OutputPaths.
func (g *Generator) Generate(ctx context.Context, req Request, progress ProgressFunc) (*Result, error) {
	req, err := g.normalize(req)
	if err != nil {
		return nil, err
	}
	if progress == nil {
		progress = func(float64) {}
	}
	if err := os.MkdirAll(g.cfg.OutputDir, 0o755); err != nil {
		return nil, apperrors.InternalError("failed to create output directory", err)
	}

	jobID := uuid.New().String()
	log := g.logger.WithFields(zap.String("job_id", jobID))
	log.Info("generating texture set",
		zap.String("prompt", req.Prompt),
		zap.Strings("maps", req.Maps),
		zap.Int("width", req.Width),
		zap.Int("height", req.Height),
		zap.Int("steps", req.Steps))

	meta := Metadata{
		JobID:          jobID,
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Size:           [2]int{req.Width, req.Height},
		Maps:           req.Maps,
		Steps:          req.Steps,
		CFG:            req.CFG,
		ModelName:      req.Model,
		OutputPaths:    make(map[string]string),
	}

	online := g.client != nil && g.client.CheckConnection(ctx)
	if !online {
		log.Warn("generation engine not available, drawing placeholder textures")
	}

	for i, mapType := range req.Maps {
		progress(float64(i) / float64(len(req.Maps)) * 0.8)
		if err := ctx.Err(); err != nil {
			return nil, apperrors.Wrap(err, "texture generation abandoned")
		}

		var path string
		if online {
			path, err = g.generateMap(ctx, req, jobID, mapType)
		} else {
			path, err = WritePlaceholder(g.cfg.OutputDir, jobID, mapType, req.Width, req.Height)
			meta.Placeholders = append(meta.Placeholders, mapType)
		}
		if err != nil {
			log.Error("failed to generate map", zap.String("map", mapType), zap.Error(err))
			if meta.Failed == nil {
				meta.Failed = make(map[string]string)
			}
			meta.Failed[mapType] = apperrors.Message(err)
			continue
		}
		meta.OutputPaths[mapType] = path
	}

	progress(0.9)

	meta.GeneratedAt = time.Now()
	metaPath := filepath.Join(g.cfg.OutputDir, jobID+"_metadata.json")
	encoded, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, apperrors.InternalError("failed to encode texture metadata", err)
	}
	if err := os.WriteFile(metaPath, encoded, 0o644); err != nil {
		return nil, apperrors.InternalError("failed to write texture metadata", err)
	}

	progress(1.0)
	log.Info("texture set complete", zap.Int("maps_generated", len(meta.OutputPaths)))

	return &Result{
		JobID:        jobID,
		OutputPaths:  meta.OutputPaths,
		Metadata:     meta,
		MetadataPath: metaPath,
	}, nil
}

func (g *Generator) generateMap(ctx context.Context, req Request, jobID, mapType string) (string, error) {
	graph := generation.BuildGraph(generation.GraphParams{
		Prompt:         AdjustPrompt(req.Prompt, mapType),
		NegativePrompt: req.NegativePrompt,
		Width:          req.Width,
		Height:         req.Height,
		Steps:          req.Steps,
		CFG:            req.CFG,
		Model:          req.Model,
		Seed:           time.Now().Unix(),
		FilenamePrefix: "texture_" + mapType,
	})

	promptID, err := g.client.SubmitWorkflow(ctx, graph)
	if err != nil {
		return "", err
	}
	files, err := g.client.WaitForOutputs(ctx, promptID)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", apperrors.RemoteExecution(fmt.Sprintf("prompt %s for job %s produced no images", promptID, jobID))
	}
	return files[0], nil
}
