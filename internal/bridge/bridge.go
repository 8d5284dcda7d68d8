// Package bridge composes the workflow registry, progress broadcaster,
// connector sessions and generation engine behind one facade.
//
// The bridge moves INITIALIZING -> READY <-> BUSY -> ERROR | SHUTDOWN. Exactly
// one command executes at a time; a caller arriving while the bridge is BUSY
// receives an immediate "not ready" response and must retry.
package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/miktos/bridge/internal/common/errors"
	"github.com/miktos/bridge/internal/common/logger"
	"github.com/miktos/bridge/internal/connector"
	"github.com/miktos/bridge/internal/events"
	"github.com/miktos/bridge/internal/events/bus"
	"github.com/miktos/bridge/internal/generation"
	"github.com/miktos/bridge/internal/progress"
	"github.com/miktos/bridge/internal/texture"
	"github.com/miktos/bridge/internal/workflow"
	v1 "github.com/miktos/bridge/pkg/api/v1"
)

// Options holds the collaborators of a Bridge.
type Options struct {
	Generation generation.Client
	Textures   *texture.Generator
	Connectors []connector.SceneTool
	// EventBus is optional. When set, workflow and connector transitions are published on it.
	EventBus bus.EventBus
	Logger   *logger.Logger
}

// Bridge is the orchestration facade.
type Bridge struct {
	generation generation.Client
	textures   *texture.Generator
	connectors map[string]connector.SceneTool
	names      []string
	eventBus   bus.EventBus
	logger     *logger.Logger

	registry    *workflow.Registry
	broadcaster *progress.Broadcaster
	dispatcher  *Dispatcher

	mu                  sync.Mutex
	state               v1.BridgeState
	lastError           string
	generationConnected bool
	startedAt           time.Time
}

// New creates a bridge in INITIALIZING. Call Initialize before executing commands.
func New(opts Options) *Bridge {
	log := opts.Logger
	if log == nil {
		log = logger.Default()
	}

	b := &Bridge{
		generation: opts.Generation,
		textures:   opts.Textures,
		connectors: make(map[string]connector.SceneTool, len(opts.Connectors)),
		eventBus:   opts.EventBus,
		logger:     log.WithComponent("bridge"),
		state:      v1.BridgeStateInitializing,
		startedAt:  time.Now(),
	}
	for _, c := range opts.Connectors {
		b.connectors[c.Name()] = c
		b.names = append(b.names, c.Name())
	}

	b.registry = workflow.NewRegistry(log)
	b.broadcaster = progress.NewBroadcaster(b.registry, log)
	b.dispatcher = NewDispatcher(b, log)
	return b
}

// Initialize wires event publication and verifies the generation engine is
// reachable. The bridge ends in READY on success and ERROR otherwise. It may
// be called again from ERROR.
func (b *Bridge) Initialize(ctx context.Context) error {
	b.mu.Lock()
	state := b.state
	b.mu.Unlock()
	if state != v1.BridgeStateInitializing && state != v1.BridgeStateError {
		return apperrors.NotReady(string(state))
	}

	b.logger.Info("initializing bridge", zap.Strings("connectors", b.names))

	if state == v1.BridgeStateInitializing && b.eventBus != nil {
		b.wireEvents()
	}

	if b.generation == nil {
		err := apperrors.InternalError("generation engine not configured", nil)
		b.setState(v1.BridgeStateError, apperrors.Message(err))
		return err
	}

	connected := b.generation.CheckConnection(ctx)
	b.mu.Lock()
	b.generationConnected = connected
	b.mu.Unlock()

	if !connected {
		err := apperrors.ConnectorUnavailable("generation engine not reachable", nil)
		b.setState(v1.BridgeStateError, apperrors.Message(err))
		b.logger.Error("bridge initialization failed", zap.Error(err))
		return err
	}

	b.setState(v1.BridgeStateReady, "")
	b.logger.Info("bridge ready")
	return nil
}

// ExecuteCommand runs cmd and always returns a response. While the command
// runs the bridge is BUSY and rejects other commands.
func (b *Bridge) ExecuteCommand(ctx context.Context, cmd v1.Command) v1.Response {
	start := time.Now()
	if cmd.ID == "" {
		cmd.ID = uuid.New().String()
	}
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = start
	}

	if state, ok := b.acquire(); !ok {
		return failure(cmd, apperrors.NotReady(string(state)), start)
	}
	defer b.release()

	return b.dispatcher.Execute(ctx, cmd)
}

// acquire performs the READY -> BUSY switch.
func (b *Bridge) acquire() (v1.BridgeState, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != v1.BridgeStateReady {
		return b.state, false
	}
	b.state = v1.BridgeStateBusy
	return b.state, true
}

// release returns a BUSY bridge to READY. A shutdown that happened while the
// command ran is left in place.
func (b *Bridge) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == v1.BridgeStateBusy {
		b.state = v1.BridgeStateReady
	}
}

// State returns the current readiness state.
func (b *Bridge) State() v1.BridgeState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Bridge) setState(state v1.BridgeState, lastError string) {
	b.mu.Lock()
	prev := b.state
	b.state = state
	b.lastError = lastError
	b.mu.Unlock()

	b.stateChanged(prev, state, lastError)
}

func (b *Bridge) stateChanged(prev, state v1.BridgeState, lastError string) {
	if prev != state {
		b.logger.Info("bridge state changed",
			zap.String("from", string(prev)),
			zap.String("to", string(state)))
		b.publish(events.BridgeStateChanged, map[string]interface{}{
			"from":       string(prev),
			"to":         string(state),
			"last_error": lastError,
		})
	}
}

// Status summarizes the bridge without touching the network.
func (b *Bridge) Status() v1.BridgeStatus {
	b.mu.Lock()
	status := v1.BridgeStatus{
		State:               b.state,
		GenerationConnected: b.generationConnected,
		UptimeSeconds:       time.Since(b.startedAt).Seconds(),
		LastError:           b.lastError,
		TextureMaps:         texture.SupportedMaps(),
		Models:              texture.AvailableModels(),
	}
	b.mu.Unlock()

	status.ActiveWorkflows = b.registry.ActiveCount()
	status.TotalWorkflows = b.registry.Len()
	status.Connectors = b.ConnectorStatuses()
	return status
}

// ConnectorStatuses returns the cached status of every connector in registration order.
func (b *Bridge) ConnectorStatuses() []v1.ConnectorStatus {
	out := make([]v1.ConnectorStatus, 0, len(b.names))
	for _, name := range b.names {
		out = append(out, b.connectors[name].Status())
	}
	return out
}

// Connector returns the connector registered under name.
func (b *Bridge) Connector(name string) (connector.SceneTool, bool) {
	c, ok := b.connectors[name]
	return c, ok
}

// TrackWorkflow creates a workflow and starts it. Background layers use it
// to register work the bridge did not start itself.
func (b *Bridge) TrackWorkflow(name string) string {
	id := b.registry.Create(name)
	b.registry.Start(id)
	return id
}

// ReportProgress records progress for a RUNNING workflow and notifies every
// subscriber.
func (b *Bridge) ReportProgress(workflowID string, p float64) {
	b.broadcaster.Notify(workflowID, p)
}

// CompleteWorkflow marks a RUNNING workflow COMPLETED. It reports false if
// the workflow was not running, e.g. because it was cancelled meanwhile.
func (b *Bridge) CompleteWorkflow(workflowID string, result map[string]interface{}) bool {
	return b.registry.Complete(workflowID, result)
}

// FailWorkflow marks a non-terminal workflow FAILED.
func (b *Bridge) FailWorkflow(workflowID string, errMsg string) bool {
	return b.registry.Fail(workflowID, errMsg)
}

// GetWorkflow returns a snapshot of one workflow.
func (b *Bridge) GetWorkflow(workflowID string) (v1.WorkflowExecution, error) {
	exec, ok := b.registry.Get(workflowID)
	if !ok {
		return v1.WorkflowExecution{}, apperrors.NotFound("workflow", workflowID)
	}
	return exec, nil
}

// ListWorkflows returns snapshots of every workflow in creation order.
func (b *Bridge) ListWorkflows() []v1.WorkflowExecution {
	return b.registry.List()
}

// CancelWorkflow marks the workflow CANCELLED. It is local bookkeeping only:
// an in-flight remote operation keeps running and its late result is dropped.
// Cancelling a terminal workflow is a no-op.
func (b *Bridge) CancelWorkflow(workflowID string) error {
	if _, ok := b.registry.Get(workflowID); !ok {
		return apperrors.NotFound("workflow", workflowID)
	}
	if b.registry.Cancel(workflowID) {
		b.logger.Info("workflow cancelled", zap.String("workflow_id", workflowID))
	}
	return nil
}

// SubscribeProgress registers fn for every progress update.
func (b *Bridge) SubscribeProgress(fn progress.Callback) *progress.Subscription {
	return b.broadcaster.Subscribe(fn)
}

// UnsubscribeProgress removes a subscription returned by SubscribeProgress.
func (b *Bridge) UnsubscribeProgress(sub *progress.Subscription) {
	b.broadcaster.Unsubscribe(sub)
}

// Shutdown cancels every non-terminal workflow, closes every connector and
// moves to SHUTDOWN. Calls after the first return nil immediately.
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	prev := b.state
	if prev == v1.BridgeStateShutdown {
		b.mu.Unlock()
		return nil
	}
	b.state = v1.BridgeStateShutdown
	b.lastError = ""
	b.mu.Unlock()
	b.stateChanged(prev, v1.BridgeStateShutdown, "")

	cancelled := b.registry.CancelActive()
	b.logger.Info("shutting down bridge", zap.Int("cancelled_workflows", len(cancelled)))

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range b.names {
		c := b.connectors[name]
		g.Go(func() error {
			if err := c.Close(gctx); err != nil {
				b.logger.Error("failed to close connector", zap.String("connector", c.Name()), zap.Error(err))
				return err
			}
			return nil
		})
	}
	err := g.Wait()

	b.logger.Info("bridge shut down")
	return err
}

func failure(cmd v1.Command, err error, start time.Time) v1.Response {
	msg := apperrors.Message(err)
	if msg == "" {
		msg = "internal error"
	}
	return respond(cmd, nil, msg, start)
}

func respond(cmd v1.Command, result map[string]interface{}, errMsg string, start time.Time) v1.Response {
	ms := time.Since(start).Milliseconds()
	resp := v1.Response{
		ID:                  cmd.ID,
		Success:             errMsg == "",
		Timestamp:           time.Now(),
		ExecutionDurationMs: &ms,
	}
	if resp.Success {
		if result == nil {
			result = map[string]interface{}{}
		}
		resp.Result = result
	} else {
		resp.Error = errMsg
	}
	return resp
}
