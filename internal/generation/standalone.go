package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/miktos/bridge/internal/common/config"
	apperrors "github.com/miktos/bridge/internal/common/errors"
	"github.com/miktos/bridge/internal/common/logger"
)

// StandaloneExecutor simulates a generation engine without a server. Every
// submitted graph produces a text file describing it.
type StandaloneExecutor struct {
	cfg         config.GenerationConfig
	outputDir   string
	submitDelay time.Duration
	simpleDelay time.Duration
	logger      *logger.Logger

	mu      sync.Mutex
	outputs map[string][]string
}

// NewStandaloneExecutor writes its mock outputs under cfg.OutputDir.
func NewStandaloneExecutor(cfg config.GenerationConfig, log *logger.Logger) *StandaloneExecutor {
	return &StandaloneExecutor{
		cfg:         cfg,
		outputDir:   cfg.OutputDir,
		submitDelay: 2 * time.Second,
		simpleDelay: 1500 * time.Millisecond,
		logger:      log.WithComponent("standalone-executor"),
		outputs:     make(map[string][]string),
	}
}

// CheckConnection always succeeds.
func (e *StandaloneExecutor) CheckConnection(context.Context) bool {
	return true
}

func (e *StandaloneExecutor) SubmitWorkflow(ctx context.Context, graph map[string]interface{}) (string, error) {
	promptID := uuid.New().String()
	e.logger.Info("simulating workflow execution", zap.String("prompt_id", promptID))

	if err := wait(ctx, e.submitDelay); err != nil {
		return "", err
	}

	encoded, err := json.MarshalIndent(graph, "", "  ")
	if err != nil {
		return "", apperrors.InternalError("failed to encode workflow", err)
	}
	if err := os.MkdirAll(e.outputDir, 0o755); err != nil {
		return "", apperrors.InternalError("failed to create output directory", err)
	}

	path := filepath.Join(e.outputDir, fmt.Sprintf("mock_texture_%s.txt", promptID[:8]))
	content := fmt.Sprintf("Mock ComfyUI output for workflow: %s\nWorkflow: %s\nGenerated at: %s\n",
		promptID, encoded, time.Now().Format(time.DateTime))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", apperrors.InternalError("failed to write mock output", err)
	}

	e.mu.Lock()
	e.outputs[promptID] = []string{path}
	e.mu.Unlock()

	e.logger.Info("simulated workflow completed", zap.String("output", path))
	return promptID, nil
}

// WaitForOutputs returns immediately: submitted graphs are already complete.
func (e *StandaloneExecutor) WaitForOutputs(_ context.Context, promptID string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	files, ok := e.outputs[promptID]
	if !ok {
		return nil, apperrors.NotFound("prompt", promptID)
	}
	return append([]string(nil), files...), nil
}

func (e *StandaloneExecutor) ExecuteSimpleGeneration(ctx context.Context, req SimpleRequest) (map[string]interface{}, error) {
	req = req.WithDefaults(e.cfg)
	e.logger.Info("simulating simple generation", zap.String("prompt", req.Prompt))

	if err := wait(ctx, e.simpleDelay); err != nil {
		return nil, err
	}

	files := []string{fmt.Sprintf("mock_texture_%d.png", time.Now().Unix())}
	result := simpleResult(req, "", files, e.simpleDelay)
	delete(result, "prompt_id")
	return result, nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return apperrors.Wrap(ctx.Err(), "generation abandoned")
	}
}
