package bridge

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/miktos/bridge/internal/events"
	"github.com/miktos/bridge/internal/events/bus"
	v1 "github.com/miktos/bridge/pkg/api/v1"
)

const (
	eventSource    = "bridge"
	publishTimeout = 2 * time.Second
)

// wireEvents forwards registry transitions and connector state changes to the event bus.
func (b *Bridge) wireEvents() {
	b.registry.AddListener(func(eventType string, exec v1.WorkflowExecution) {
		data := map[string]interface{}{
			"workflow_id": exec.ID,
			"name":        exec.Name,
			"status":      string(exec.Status),
			"progress":    exec.Progress,
		}
		if exec.Error != "" {
			data["error"] = exec.Error
		}
		if exec.Result != nil {
			data["result"] = exec.Result
		}
		b.publish(eventType, data)
	})

	for _, name := range b.names {
		b.connectors[name].OnStateChange(func(status v1.ConnectorStatus) {
			b.publish(events.ConnectorStateChanged, map[string]interface{}{
				"connector":  status.Name,
				"state":      string(status.State),
				"connected":  status.Connected,
				"last_error": status.LastError,
			})
		})
	}
}

func (b *Bridge) publish(eventType string, data map[string]interface{}) {
	if b.eventBus == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	event := bus.NewEvent(eventType, eventSource, data)
	if err := b.eventBus.Publish(ctx, events.Subject(eventType), event); err != nil {
		b.logger.Warn("failed to publish event",
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}
