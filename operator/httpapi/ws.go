package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Hub is the WebSocket push side of spec §4.8 step 8 ("push WebSocket
// updates to subscribed UIs"), grounded on gorilla/websocket, the same
// library the teacher's go.mod carries transitively for its HTTP surface.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: map[*websocket.Conn]chan []byte{},
	}
}

// Publish implements operator.Broadcaster: it fans out event to every
// connected client. A slow/blocked client is dropped rather than
// back-pressuring the dispatcher.
func (h *Hub) Publish(event string, payload interface{}) {
	raw, err := json.Marshal(map[string]interface{}{"event": event, "payload": payload})
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.clients {
		select {
		case ch <- raw:
		default:
			delete(h.clients, conn)
			close(ch)
			conn.Close()
		}
	}
}

// ServeWS upgrades the connection and registers it for Publish fan-out.
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	ch := make(chan []byte, 16)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	go h.readLoop(conn)
	for msg := range ch {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// readLoop drains inbound frames (this channel is push-only) so the
// connection's read deadline/pong handling stays serviced.
func (h *Hub) readLoop(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.mu.Lock()
			if ch, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				close(ch)
			}
			h.mu.Unlock()
			return
		}
	}
}
