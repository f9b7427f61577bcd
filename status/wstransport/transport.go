// Package wstransport is the reference push-channel transport for the
// Status Publisher (spec §6 "Push Channel interface"): a per-user_id hub of
// WebSocket connections — a register/unregister goroutine owning the
// connection set, routing by user_id instead of broadcasting to everyone.
// Publish writes to the connections from the caller's goroutine.
package wstransport

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/arcflow/orchestrator/status"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type registration struct {
	userID string
	conn   *websocket.Conn
}

// Hub fans StatusEvents out to the WebSocket connections registered for
// their user_id. It implements status.Transport.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*websocket.Conn]bool // user_id -> connections

	register   chan registration
	unregister chan registration
}

var _ status.Transport = (*Hub)(nil)

// NewHub builds an empty Hub. Call Run in a goroutine before serving
// connections.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*websocket.Conn]bool),
		register:   make(chan registration),
		unregister: make(chan registration),
	}
}

// Run owns the client set; it must be started before HandleWS is used and
// stops when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-h.register:
			h.mu.Lock()
			if h.clients[r.userID] == nil {
				h.clients[r.userID] = make(map[*websocket.Conn]bool)
			}
			h.clients[r.userID][r.conn] = true
			h.mu.Unlock()
		case r := <-h.unregister:
			h.mu.Lock()
			if conns, ok := h.clients[r.userID]; ok {
				delete(conns, r.conn)
				if len(conns) == 0 {
					delete(h.clients, r.userID)
				}
			}
			h.mu.Unlock()
			_ = r.conn.Close()
		}
	}
}

// HandleWS upgrades an HTTP request to a WebSocket connection scoped to
// userID and registers it with the hub until the connection closes.
func (h *Hub) HandleWS(userID string, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("wstransport: upgrade failed: %v", err)
		return
	}
	h.register <- registration{userID: userID, conn: conn}

	go func() {
		defer func() { h.unregister <- registration{userID: userID, conn: conn} }()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Publish implements status.Transport, writing event as JSON to every
// connection registered for event.UserID. A write failure on one
// connection does not block delivery to the others.
func (h *Hub) Publish(_ context.Context, event status.Event) error {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients[event.UserID]))
	for c := range h.clients[event.UserID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	var lastErr error
	for _, c := range conns {
		if err := c.WriteJSON(event); err != nil {
			lastErr = err
			go func(c *websocket.Conn) { h.unregister <- registration{userID: event.UserID, conn: c} }(c)
		}
	}
	return lastErr
}
