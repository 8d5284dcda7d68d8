package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/miktos/bridge/internal/common/errors"
	"github.com/miktos/bridge/internal/common/logger"
	"github.com/miktos/bridge/internal/progress"
	v1 "github.com/miktos/bridge/pkg/api/v1"
	"github.com/miktos/bridge/pkg/connector/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ForwardProgress subscribes hub to every progress update of svc.
func ForwardProgress(svc Service, hub *Hub) *progress.Subscription {
	return svc.SubscribeProgress(func(workflowID string, p float64) {
		update := v1.ProgressUpdate{
			WorkflowID: workflowID,
			Progress:   p,
			Timestamp:  time.Now().UTC(),
		}
		if exec, err := svc.GetWorkflow(workflowID); err == nil {
			update.Status = exec.Status
		}
		hub.Broadcast(update)
	})
}

// StreamHandler serves the websocket endpoints.
type StreamHandler struct {
	service Service
	hub     *Hub
	logger  *logger.Logger
}

// NewStreamHandler creates the websocket handler.
func NewStreamHandler(svc Service, hub *Hub, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		service: svc,
		hub:     hub,
		logger:  log.WithComponent("bridge-stream"),
	}
}

// StreamProgress upgrades to a progress stream.
// GET /ws/progress
func (s *StreamHandler) StreamProgress(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(uuid.New().String(), conn, s.hub, s.logger)
	if !s.hub.Register(client) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		_ = conn.Close()
		return
	}

	go client.WritePump()
	client.ReadPump()
}

// ToolPush accepts unsolicited messages from a tool and applies them through
// the bridge's workflow entry points.
// GET /ws/connectors/:name
func (s *StreamHandler) ToolPush(c *gin.Context) {
	name := c.Param("name")
	if !s.knownConnector(name) {
		_ = c.Error(errors.NotFound("connector", name))
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	log := s.logger.WithConnector(name)
	log.Info("tool push channel opened")
	conn.SetReadLimit(maxMessageSize)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("tool push channel read error", zap.Error(err))
			}
			log.Info("tool push channel closed")
			return
		}

		push, err := protocol.ParsePush(data)
		if err != nil {
			log.Warn("dropping malformed push", zap.Error(err))
			continue
		}
		s.applyPush(log, push)
	}
}

func (s *StreamHandler) applyPush(log *logger.Logger, push *protocol.Push) {
	if push.Type == protocol.PushTypeHeartbeat {
		log.Debug("tool heartbeat")
		return
	}
	if push.WorkflowID == "" {
		log.Warn("push without workflow id", zap.String("type", string(push.Type)))
		return
	}

	switch push.Type {
	case protocol.PushTypeProgress:
		s.service.ReportProgress(push.WorkflowID, push.Progress)
	case protocol.PushTypeResult:
		if !s.service.CompleteWorkflow(push.WorkflowID, push.Data) {
			log.Info("result for workflow that is not running dropped", zap.String("workflow_id", push.WorkflowID))
		}
	case protocol.PushTypeError:
		if !s.service.FailWorkflow(push.WorkflowID, push.Error) {
			log.Info("error for finished workflow dropped", zap.String("workflow_id", push.WorkflowID))
		}
	default:
		log.Warn("unknown push type", zap.String("type", string(push.Type)))
	}
}

func (s *StreamHandler) knownConnector(name string) bool {
	for _, st := range s.service.ConnectorStatuses() {
		if st.Name == name {
			return true
		}
	}
	return false
}
