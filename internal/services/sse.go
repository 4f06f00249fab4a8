package services

import (
	"sync"

	"github.com/huangang/projecthub/internal/models"
)

// MessageEvent is pushed to board subscribers when a message is posted.
type MessageEvent struct {
	ProjectID string          `json:"project_id"`
	Message   *models.Message `json:"message"`
}

type subscriber struct {
	projectID string
	ch        chan MessageEvent
}

// MessageHub fans new board messages out to the clients watching a project.
type MessageHub struct {
	clients map[string]subscriber
	mu      sync.RWMutex
}

func NewMessageHub() *MessageHub {
	return &MessageHub{
		clients: make(map[string]subscriber),
	}
}

// Subscribe registers a client for one project's board.
func (h *MessageHub) Subscribe(clientID, projectID string) <-chan MessageEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.clients[clientID]; ok {
		close(old.ch)
	}
	ch := make(chan MessageEvent, 100)
	h.clients[clientID] = subscriber{projectID: projectID, ch: ch}
	return ch
}

func (h *MessageHub) Unsubscribe(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub, ok := h.clients[clientID]; ok {
		close(sub.ch)
		delete(h.clients, clientID)
	}
}

// Publish delivers event to the project's subscribers. Slow clients with a
// full buffer miss the event.
func (h *MessageHub) Publish(event MessageEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.clients {
		if sub.projectID != event.ProjectID {
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
}

func (h *MessageHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
