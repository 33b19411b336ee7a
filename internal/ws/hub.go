package ws

import (
	"log/slog"
	"sync"
	"time"

	"tasksync/internal/docstore"
	"tasksync/internal/livestore"
	"tasksync/internal/logger"

	"github.com/gorilla/websocket"
)

type HubConfig struct {
	// Collection holding the tasks.
	Collection string
	// OpTimeout bounds every mutation a client sends.
	OpTimeout time.Duration
}

// Hub tracks the open task sessions so they can be counted and closed
// together on shutdown.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	docs    docstore.Store
	cfg     HubConfig
	log     *slog.Logger
}

func NewHub(docs docstore.Store, cfg HubConfig) *Hub {
	if cfg.Collection == "" {
		cfg.Collection = livestore.DefaultCollection
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 10 * time.Second
	}
	return &Hub{
		clients: make(map[string]*Client),
		docs:    docs,
		cfg:     cfg,
		log:     logger.Component("ws"),
	}
}

// NewClient wraps an upgraded connection in a session for userID. Start it
// with Run.
func (h *Hub) NewClient(userID string, conn *websocket.Conn) *Client {
	return newClient(h, userID, conn)
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	n := len(h.clients)
	h.mu.Unlock()

	openSessions.Set(float64(n))
	h.log.Info("session opened", "client_id", c.ID, "user_id", c.UserID, "sessions", n)
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)
	n := len(h.clients)
	h.mu.Unlock()

	openSessions.Set(float64(n))
	h.log.Info("session closed", "client_id", c.ID, "sessions", n)
}

// Count returns the number of open sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll drops every connection and waits until their sessions are torn
// down or the timeout passes.
func (h *Hub) CloseAll(timeout time.Duration) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	deadline := time.After(timeout)
	for _, c := range clients {
		c.Close()
	}
	for _, c := range clients {
		select {
		case <-c.Done:
		case <-deadline:
			h.log.Warn("sessions still open after shutdown timeout", "sessions", h.Count())
			return
		}
	}
}
