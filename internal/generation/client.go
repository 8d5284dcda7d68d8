// Package generation talks to the AI image-generation engine.
//
// Two implementations satisfy Client: ComfyUIClient drives a live ComfyUI
// server over HTTP, StandaloneExecutor simulates one for local development.
package generation

import (
	"context"

	"github.com/miktos/bridge/internal/common/config"
	"github.com/miktos/bridge/internal/common/logger"
)

const (
	ModeComfyUI    = "comfyui"
	ModeStandalone = "standalone"
)

// Client is the contract the bridge consumes from a generation engine.
type Client interface {
	// CheckConnection reports whether the engine is reachable.
	CheckConnection(ctx context.Context) bool
	// SubmitWorkflow queues a node graph and returns the engine's prompt id.
	SubmitWorkflow(ctx context.Context, graph map[string]interface{}) (string, error)
	// WaitForOutputs blocks until the prompt finishes and returns its output files.
	WaitForOutputs(ctx context.Context, promptID string) ([]string, error)
	// ExecuteSimpleGeneration runs a single text-to-image pass.
	ExecuteSimpleGeneration(ctx context.Context, req SimpleRequest) (map[string]interface{}, error)
}

// SimpleRequest parameterises a single text-to-image pass.
type SimpleRequest struct {
	Prompt         string
	NegativePrompt string
	Steps          int
	CFG            float64
	Width          int
	Height         int
}

// WithDefaults fills unset fields from cfg.
func (r SimpleRequest) WithDefaults(cfg config.GenerationConfig) SimpleRequest {
	if r.Steps <= 0 {
		r.Steps = cfg.DefaultSteps
	}
	if r.CFG <= 0 {
		r.CFG = cfg.DefaultCFG
	}
	if r.Width <= 0 {
		r.Width = cfg.DefaultWidth
	}
	if r.Height <= 0 {
		r.Height = cfg.DefaultHeight
	}
	return r
}

// New returns the client selected by cfg.Mode.
func New(cfg config.GenerationConfig, log *logger.Logger) Client {
	if cfg.Mode == ModeStandalone {
		return NewStandaloneExecutor(cfg, log)
	}
	return NewComfyUIClient(cfg, log)
}
