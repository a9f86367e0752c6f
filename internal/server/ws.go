package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Hub pushes refreshed prices to connected browsers. Clients are
// write-only from the server's point of view; inbound frames are
// drained and discarded.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	closed  bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Single-tenant tool, same-origin policy not enforced
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]bool),
	}
}

// HandleWS upgrades the connection and registers the client.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", slog.Any("error", err))
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[conn] = true
	n := len(h.clients)
	h.mu.Unlock()
	slog.Debug("WebSocket client connected", slog.Int("clients", n))

	// Reader pump: drain until the peer goes away, then unregister.
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast fans a JSON payload out to every connected client.
// Clients that fail to accept the write are dropped.
func (h *Hub) Broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("WebSocket payload marshal failed", slog.Any("error", err))
		return
	}

	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			h.drop(c)
		}
	}
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.clients = make(map[*websocket.Conn]bool)
	h.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}
