package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/miktos/bridge/internal/common/config"
	apperrors "github.com/miktos/bridge/internal/common/errors"
	"github.com/miktos/bridge/internal/common/logger"
)

const (
	defaultHistoryPoll = time.Second
	maxErrorBody       = 4096
)

// ComfyUIClient submits node graphs to a ComfyUI server.
type ComfyUIClient struct {
	baseURL     string
	clientID    string
	cfg         config.GenerationConfig
	httpClient  *http.Client
	pollEvery   time.Duration
	waitTimeout time.Duration
	logger      *logger.Logger
}

// NewComfyUIClient creates a client for the server at cfg.ComfyUIURL().
func NewComfyUIClient(cfg config.GenerationConfig, log *logger.Logger) *ComfyUIClient {
	return &ComfyUIClient{
		baseURL:  cfg.ComfyUIURL(),
		clientID: uuid.New().String(),
		cfg:      cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		pollEvery:   defaultHistoryPoll,
		waitTimeout: cfg.TimeoutDuration(),
		logger:      log.WithComponent("comfyui-client"),
	}
}

// CheckConnection queries /system_stats.
func (c *ComfyUIClient) CheckConnection(ctx context.Context) bool {
	body, err := c.get(ctx, "/system_stats")
	if err != nil {
		c.logger.Debug("comfyui not reachable", zap.Error(err))
		return false
	}
	return gjson.ValidBytes(body) && gjson.GetBytes(body, "system").Exists()
}

// SubmitWorkflow posts graph to /prompt and returns the queued prompt id.
func (c *ComfyUIClient) SubmitWorkflow(ctx context.Context, graph map[string]interface{}) (string, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"prompt":    graph,
		"client_id": c.clientID,
	})
	if err != nil {
		return "", apperrors.InternalError("failed to encode workflow", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/prompt", bytes.NewReader(payload))
	if err != nil {
		return "", apperrors.InternalError("failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperrors.ConnectorUnavailable("ComfyUI unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperrors.ConnectorUnavailable("failed to read ComfyUI reply", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", apperrors.RemoteExecution(fmt.Sprintf("ComfyUI rejected workflow (%d): %s",
			resp.StatusCode, describeError(body)))
	}

	promptID := gjson.GetBytes(body, "prompt_id").String()
	if promptID == "" {
		return "", apperrors.RemoteExecution("ComfyUI reply has no prompt_id: " + describeError(body))
	}

	c.logger.Info("workflow queued",
		zap.String("prompt_id", promptID),
		zap.Int64("queue_number", gjson.GetBytes(body, "number").Int()))
	return promptID, nil
}

// WaitForOutputs polls /history/{promptID} until the prompt has finished,
// bounded by the configured generation timeout.
func (c *ComfyUIClient) WaitForOutputs(ctx context.Context, promptID string) ([]string, error) {
	if c.waitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.waitTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(c.pollEvery)
	defer ticker.Stop()

	for {
		body, err := c.get(ctx, "/history/"+promptID)
		if err != nil && ctx.Err() == nil {
			c.logger.Debug("history poll failed", zap.String("prompt_id", promptID), zap.Error(err))
		}
		if err == nil {
			entry := gjson.GetBytes(body, promptID)
			if entry.Exists() {
				return collectOutputs(promptID, entry)
			}
		}

		select {
		case <-ctx.Done():
			return nil, apperrors.Timeout("generation timeout - prompt " + promptID + " did not finish")
		case <-ticker.C:
		}
	}
}

func collectOutputs(promptID string, entry gjson.Result) ([]string, error) {
	if entry.Get("status.status_str").String() == "error" {
		return nil, apperrors.RemoteExecution("ComfyUI execution failed for prompt " + promptID)
	}

	var files []string
	entry.Get("outputs").ForEach(func(_, nodeOut gjson.Result) bool {
		nodeOut.Get("images").ForEach(func(_, img gjson.Result) bool {
			name := img.Get("filename").String()
			if sub := img.Get("subfolder").String(); sub != "" {
				name = sub + "/" + name
			}
			files = append(files, name)
			return true
		})
		return true
	})
	return files, nil
}

// ExecuteSimpleGeneration builds a single-pass graph, submits it and waits for its images.
func (c *ComfyUIClient) ExecuteSimpleGeneration(ctx context.Context, req SimpleRequest) (map[string]interface{}, error) {
	req = req.WithDefaults(c.cfg)
	started := time.Now()

	promptID, err := c.SubmitWorkflow(ctx, BuildGraph(GraphParams{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Width:          req.Width,
		Height:         req.Height,
		Steps:          req.Steps,
		CFG:            req.CFG,
		Model:          c.cfg.Model,
		Seed:           started.Unix(),
		FilenamePrefix: "miktos_image",
	}))
	if err != nil {
		return nil, err
	}

	files, err := c.WaitForOutputs(ctx, promptID)
	if err != nil {
		return nil, err
	}

	return simpleResult(req, promptID, files, time.Since(started)), nil
}

func (c *ComfyUIClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// describeError extracts ComfyUI's error message, falling back to the raw body.
func describeError(body []byte) string {
	if msg := gjson.GetBytes(body, "error.message").String(); msg != "" {
		return msg
	}
	if msg := gjson.GetBytes(body, "error").String(); msg != "" {
		return msg
	}
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return string(body)
}

func simpleResult(req SimpleRequest, promptID string, files []string, elapsed time.Duration) map[string]interface{} {
	if files == nil {
		files = []string{}
	}
	return map[string]interface{}{
		"status":          "completed",
		"prompt_id":       promptID,
		"prompt":          req.Prompt,
		"negative_prompt": req.NegativePrompt,
		"parameters": map[string]interface{}{
			"steps":  req.Steps,
			"cfg":    req.CFG,
			"width":  req.Width,
			"height": req.Height,
		},
		"output_files":   files,
		"execution_time": elapsed.Seconds(),
	}
}
