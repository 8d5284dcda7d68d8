// Package workflow tracks workflow executions and enforces their state machine.
//
// A workflow moves PENDING -> RUNNING -> {COMPLETED, FAILED, CANCELLED}.
// Terminal records are frozen: every later mutation is a no-op that reports false.
package workflow

import (
	"maps"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/miktos/bridge/internal/common/logger"
	"github.com/miktos/bridge/internal/events"
	v1 "github.com/miktos/bridge/pkg/api/v1"
)

// Listener observes registry transitions. It receives the event type from
// package events and a snapshot taken after the transition.
type Listener func(eventType string, exec v1.WorkflowExecution)

// Registry owns the table of workflow executions. All methods are safe for
// concurrent use; listeners run after the lock is released.
type Registry struct {
	executions map[string]*v1.WorkflowExecution
	order      []string // ids in creation order
	mu         sync.RWMutex

	listeners  []Listener
	listenerMu sync.RWMutex

	logger *logger.Logger
	now    func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		executions: make(map[string]*v1.WorkflowExecution),
		logger:     log.WithComponent("workflow-registry"),
		now:        time.Now,
	}
}

// AddListener registers a transition listener for the registry's lifetime.
func (r *Registry) AddListener(l Listener) {
	r.listenerMu.Lock()
	r.listeners = append(r.listeners, l)
	r.listenerMu.Unlock()
}

// Create inserts a PENDING record with zero progress and returns its id.
func (r *Registry) Create(name string) string {
	exec := &v1.WorkflowExecution{
		ID:        uuid.New().String(),
		Name:      name,
		Status:    v1.WorkflowStatusPending,
		Progress:  0.0,
		StartTime: r.now(),
	}

	r.mu.Lock()
	r.executions[exec.ID] = exec
	r.order = append(r.order, exec.ID)
	snap := snapshot(exec)
	r.mu.Unlock()

	r.logger.Debug("workflow created", zap.String("workflow_id", exec.ID), zap.String("name", name))
	r.emit(events.WorkflowCreated, snap)
	return exec.ID
}

// Start moves a PENDING workflow to RUNNING.
func (r *Registry) Start(id string) bool {
	return r.transition(id, events.WorkflowStarted, func(exec *v1.WorkflowExecution) bool {
		if exec.Status != v1.WorkflowStatusPending {
			return false
		}
		exec.Status = v1.WorkflowStatusRunning
		return true
	})
}

// UpdateProgress records progress for a RUNNING workflow. The value is
// clamped to [0, 1]. Any other state, an unknown id or NaN is a no-op.
func (r *Registry) UpdateProgress(id string, progress float64) bool {
	if math.IsNaN(progress) {
		return false
	}
	progress = math.Max(0, math.Min(1, progress))
	return r.transition(id, events.WorkflowProgress, func(exec *v1.WorkflowExecution) bool {
		if exec.Status != v1.WorkflowStatusRunning {
			return false
		}
		exec.Progress = progress
		return true
	})
}

// Complete moves a RUNNING workflow to COMPLETED with progress 1.0.
func (r *Registry) Complete(id string, result map[string]interface{}) bool {
	return r.transition(id, events.WorkflowCompleted, func(exec *v1.WorkflowExecution) bool {
		if exec.Status != v1.WorkflowStatusRunning {
			return false
		}
		exec.Status = v1.WorkflowStatusCompleted
		exec.Progress = 1.0
		exec.Result = maps.Clone(result)
		r.finish(exec)
		return true
	})
}

// Fail moves a non-terminal workflow to FAILED. A workflow that never got
// past PENDING can fail too, e.g. when its first remote call is refused.
func (r *Registry) Fail(id string, errMsg string) bool {
	return r.transition(id, events.WorkflowFailed, func(exec *v1.WorkflowExecution) bool {
		if exec.Status.IsTerminal() {
			return false
		}
		exec.Status = v1.WorkflowStatusFailed
		exec.Error = errMsg
		r.finish(exec)
		return true
	})
}

// Cancel moves a non-terminal workflow to CANCELLED. It only updates the
// record; work already in flight for the workflow is not interrupted.
func (r *Registry) Cancel(id string) bool {
	return r.transition(id, events.WorkflowCancelled, func(exec *v1.WorkflowExecution) bool {
		if exec.Status.IsTerminal() {
			return false
		}
		exec.Status = v1.WorkflowStatusCancelled
		r.finish(exec)
		return true
	})
}

// CancelActive cancels every non-terminal workflow and returns their ids.
func (r *Registry) CancelActive() []string {
	r.mu.RLock()
	var ids []string
	for id, exec := range r.executions {
		if !exec.Status.IsTerminal() {
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()

	cancelled := make([]string, 0, len(ids))
	for _, id := range ids {
		if r.Cancel(id) {
			cancelled = append(cancelled, id)
		}
	}
	return cancelled
}

// Get returns a snapshot of the workflow. ok is false when the id is unknown.
func (r *Registry) Get(id string) (v1.WorkflowExecution, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exec, ok := r.executions[id]
	if !ok {
		return v1.WorkflowExecution{}, false
	}
	return snapshot(exec), true
}

// Has reports whether id is a tracked workflow, terminal or not.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.executions[id]
	return ok
}

// List returns snapshots of every workflow in creation order.
func (r *Registry) List() []v1.WorkflowExecution {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]v1.WorkflowExecution, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, snapshot(r.executions[id]))
	}
	return result
}

// ActiveCount returns the number of non-terminal workflows.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, exec := range r.executions {
		if !exec.Status.IsTerminal() {
			count++
		}
	}
	return count
}

// Len returns the total number of tracked workflows.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.executions)
}

// transition applies mutate under the write lock and emits eventType when it
// reports a change.
func (r *Registry) transition(id, eventType string, mutate func(*v1.WorkflowExecution) bool) bool {
	r.mu.Lock()
	exec, ok := r.executions[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	from := exec.Status
	if !mutate(exec) {
		r.mu.Unlock()
		r.logger.Debug("workflow transition ignored",
			zap.String("workflow_id", id),
			zap.String("event", eventType),
			zap.String("status", string(from)))
		return false
	}
	snap := snapshot(exec)
	r.mu.Unlock()

	if from != snap.Status {
		r.logger.Info("workflow transition",
			zap.String("workflow_id", id),
			zap.String("from", string(from)),
			zap.String("to", string(snap.Status)))
	}
	r.emit(eventType, snap)
	return true
}

func (r *Registry) finish(exec *v1.WorkflowExecution) {
	end := r.now()
	exec.EndTime = &end
}

func (r *Registry) emit(eventType string, snap v1.WorkflowExecution) {
	r.listenerMu.RLock()
	listeners := make([]Listener, len(r.listeners))
	copy(listeners, r.listeners)
	r.listenerMu.RUnlock()

	for _, l := range listeners {
		l(eventType, snap)
	}
}

func snapshot(exec *v1.WorkflowExecution) v1.WorkflowExecution {
	snap := *exec
	snap.Result = maps.Clone(exec.Result)
	if exec.EndTime != nil {
		end := *exec.EndTime
		snap.EndTime = &end
	}
	return snap
}
