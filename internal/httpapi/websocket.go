package httpapi

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// eventMessage is broadcast to every connected /ws/events client whenever a
// plugin lifecycle transition happens (install, activate, deactivate,
// uninstall).
type eventMessage struct {
	Type     string `json:"type"`
	PluginID string `json:"plugin_id"`
}

// eventHub fans out lifecycle events to connected websocket clients.
type eventHub struct {
	mu       sync.Mutex
	clients  map[*websocket.Conn]struct{}
	upgrader websocket.Upgrader
}

func newEventHub() *eventHub {
	return &eventHub{
		clients: make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *eventHub) add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = struct{}{}
}

func (h *eventHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, conn)
	_ = conn.Close()
}

// broadcast sends msg to every connected client, dropping any connection
// that fails to write rather than letting one slow client block the rest.
func (h *eventHub) broadcast(msg eventMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteJSON(msg); err != nil {
			delete(h.clients, conn)
			_ = conn.Close()
		}
	}
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.events.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("httpapi: websocket upgrade failed: %v", err)
		return
	}
	s.events.add(conn)
	defer s.events.remove(conn)

	// The connection is write-only from the server's perspective; keep
	// reading so gorilla/websocket's control-frame handling (pings, close)
	// still runs, and exit once the client disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
