// Package progress fans workflow progress updates out to subscribers.
package progress

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/miktos/bridge/internal/common/logger"
)

// Callback receives a progress update for a workflow.
type Callback func(workflowID string, progress float64)

// Store persists a progress update. *workflow.Registry satisfies it.
type Store interface {
	Has(id string) bool
	UpdateProgress(id string, progress float64) bool
}

// Subscription identifies a registered callback. Pass it back to Unsubscribe.
type Subscription struct {
	fn Callback
}

// Broadcaster keeps an ordered list of subscribers and invokes them
// synchronously, in subscription order, on every Notify.
type Broadcaster struct {
	store  Store
	logger *logger.Logger

	subs []*Subscription
	mu   sync.RWMutex
}

// NewBroadcaster creates a broadcaster that persists updates to store first.
func NewBroadcaster(store Store, log *logger.Logger) *Broadcaster {
	return &Broadcaster{
		store:  store,
		logger: log.WithComponent("progress-broadcaster"),
	}
}

// Subscribe appends fn to the subscriber list.
func (b *Broadcaster) Subscribe(fn Callback) *Subscription {
	sub := &Subscription{fn: fn}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes sub. Unknown or already removed subscriptions are ignored.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Count returns the number of current subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Notify persists the update, then calls every subscriber registered at call
// time exactly once. Updates for unknown workflows are dropped; updates for
// terminal workflows are not recorded but still reach subscribers. A
// panicking subscriber is logged and skipped.
func (b *Broadcaster) Notify(workflowID string, progress float64) {
	if !b.store.Has(workflowID) {
		b.logger.Debug("progress for unknown workflow dropped",
			zap.String("workflow_id", workflowID),
			zap.Float64("progress", progress))
		return
	}
	if !b.store.UpdateProgress(workflowID, progress) {
		b.logger.Debug("progress not recorded",
			zap.String("workflow_id", workflowID),
			zap.Float64("progress", progress))
	}

	b.mu.RLock()
	subs := make([]*Subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for i, sub := range subs {
		if err := invoke(sub.fn, workflowID, progress); err != nil {
			b.logger.Error("progress subscriber failed",
				zap.String("workflow_id", workflowID),
				zap.Int("subscriber", i),
				zap.Error(err))
		}
	}
}

func invoke(fn Callback, workflowID string, progress float64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	fn(workflowID, progress)
	return nil
}
