package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"agriscan/internal/logger"

	"github.com/gorilla/websocket"
)

// Event types pushed to browsers.
const (
	EventImages         = "images"
	EventUploadProgress = "upload_progress"
	EventAnalysis       = "analysis"
)

const writeWait = 5 * time.Second

type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// HubService fans events out to every connected client. The latest event
// of each type is replayed to clients when they connect.
type HubService struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mutex      sync.RWMutex
	logger     *logger.Logger

	last    map[string][]byte
	order   []string
	running bool
	done    chan struct{}
}

func NewHubService(logger *logger.Logger) *HubService {
	return &HubService{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		logger:     logger,
		last:       make(map[string][]byte),
		done:       make(chan struct{}),
	}
}

// Run serves register, unregister and broadcast requests until ctx ends.
func (h *HubService) Run(ctx context.Context) {
	h.mutex.Lock()
	h.running = true
	h.mutex.Unlock()

	defer func() {
		h.mutex.Lock()
		h.running = false
		for client := range h.clients {
			client.Close()
			delete(h.clients, client)
		}
		h.mutex.Unlock()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			replay := make([][]byte, 0, len(h.order))
			for _, t := range h.order {
				replay = append(replay, h.last[t])
			}
			for _, msg := range replay {
				if err := h.write(client, msg); err != nil {
					h.dropLocked(client)
					break
				}
			}
			count := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Client connected. Total: %d", count)

		case client := <-h.unregister:
			h.mutex.Lock()
			h.dropLocked(client)
			count := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Client disconnected. Total: %d", count)

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				if err := h.write(client, message); err != nil {
					h.logger.Error("Error sending message: %v", err)
					h.dropLocked(client)
				}
			}
			h.mutex.Unlock()
		}
	}
}

func (h *HubService) write(client *websocket.Conn, message []byte) error {
	client.SetWriteDeadline(time.Now().Add(writeWait))
	return client.WriteMessage(websocket.TextMessage, message)
}

func (h *HubService) dropLocked(client *websocket.Conn) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		client.Close()
	}
}

func (h *HubService) Register(client *websocket.Conn) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

func (h *HubService) Unregister(client *websocket.Conn) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish encodes an event, remembers it for late joiners and queues it for
// broadcast. Before Run starts only the remembered copy is updated.
func (h *HubService) Publish(eventType string, data interface{}) error {
	message, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", eventType, err)
	}

	h.mutex.Lock()
	if _, seen := h.last[eventType]; !seen {
		h.order = append(h.order, eventType)
	}
	h.last[eventType] = message
	running := h.running
	h.mutex.Unlock()

	if !running {
		return nil
	}

	select {
	case h.broadcast <- message:
	case <-h.done:
	}
	return nil
}

func (h *HubService) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
