package api

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/miktos/bridge/internal/common/logger"
	v1 "github.com/miktos/bridge/pkg/api/v1"
)

const broadcastBuffer = 256

// Hub routes progress updates to the websocket clients subscribed to them.
type Hub struct {
	clients         map[*Client]bool
	workflowClients map[string]map[*Client]bool
	allClients      map[*Client]bool

	broadcast chan v1.ProgressUpdate
	closed    bool

	mu     sync.RWMutex
	logger *logger.Logger
}

// NewHub creates a hub. Run must be started before clients connect.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:         make(map[*Client]bool),
		workflowClients: make(map[string]map[*Client]bool),
		allClients:      make(map[*Client]bool),
		broadcast:       make(chan v1.ProgressUpdate, broadcastBuffer),
		logger:          log.WithComponent("progress-hub"),
	}
}

// Run delivers queued updates until ctx ends, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("progress hub started")
	defer h.logger.Info("progress hub stopped")

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			h.closed = true
			for client := range h.clients {
				h.removeLocked(client)
			}
			h.mu.Unlock()
			return

		case update := <-h.broadcast:
			h.deliver(update)
		}
	}
}

func (h *Hub) deliver(update v1.ProgressUpdate) {
	data, err := json.Marshal(update)
	if err != nil {
		h.logger.Error("failed to marshal progress update", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	targets := make(map[*Client]bool, len(h.allClients))
	for client := range h.allClients {
		targets[client] = true
	}
	for client := range h.workflowClients[update.WorkflowID] {
		targets[client] = true
	}

	for client := range targets {
		select {
		case client.send <- data:
		default:
			h.logger.Warn("client send buffer full, dropping client", zap.String("client_id", client.ID))
			h.removeLocked(client)
		}
	}
}

// removeLocked drops client from every index and closes its send channel.
func (h *Hub) removeLocked(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	delete(h.allClients, client)
	for id, clients := range h.workflowClients {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.workflowClients, id)
		}
	}
	close(client.send)
}

// Register adds a client to the hub. It reports false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[client] = true
	h.logger.Debug("client registered", zap.String("client_id", client.ID))
	return true
}

// Unregister removes a client from the hub. Unknown clients are ignored.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		h.removeLocked(client)
		h.logger.Debug("client unregistered", zap.String("client_id", client.ID))
	}
}

// Broadcast queues update for delivery. It never blocks: when the queue is
// full the update is dropped.
func (h *Hub) Broadcast(update v1.ProgressUpdate) {
	select {
	case h.broadcast <- update:
	default:
		h.logger.Warn("progress queue full, dropping update", zap.String("workflow_id", update.WorkflowID))
	}
}

// SubscribeClient subscribes client to the given workflows, or to every
// workflow when ids is empty.
func (h *Hub) SubscribeClient(client *Client, ids []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	if len(ids) == 0 {
		h.allClients[client] = true
		return
	}
	for _, id := range ids {
		if _, ok := h.workflowClients[id]; !ok {
			h.workflowClients[id] = make(map[*Client]bool)
		}
		h.workflowClients[id][client] = true
	}
}

// UnsubscribeClient reverses SubscribeClient. An empty ids list removes
// every subscription of the client.
func (h *Hub) UnsubscribeClient(client *Client, ids []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(ids) == 0 {
		delete(h.allClients, client)
		for id, clients := range h.workflowClients {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.workflowClients, id)
			}
		}
		return
	}
	for _, id := range ids {
		if clients, ok := h.workflowClients[id]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.workflowClients, id)
			}
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SubscriberCount returns the number of clients that receive updates for a workflow.
func (h *Hub) SubscriberCount(workflowID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := len(h.allClients)
	for client := range h.workflowClients[workflowID] {
		if !h.allClients[client] {
			n++
		}
	}
	return n
}
