package server

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
)

// WebSocketBufferSize bounds how many pending broadcasts a slow client
// can queue before the hub drops it, the same backpressure shape as the
// teacher's Hub.
const WebSocketBufferSize = 256

// WSMessageType tags the payload carried by a WSMessage.
type WSMessageType string

const (
	WSTypeStateUpdate  WSMessageType = "state_update"
	WSTypeTickSummary  WSMessageType = "tick_summary"
)

// WSMessage envelopes every message sent to a dashboard client.
type WSMessage struct {
	Type WSMessageType `json:"type"`
	Data interface{}   `json:"data"`
}

// wsClient is one connected dashboard browser.
type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans dashboard state out to every connected WebSocket client. It
// never reads from clients beyond detecting disconnects: the dashboard
// is observation-only, grounded in the teacher's internal/server.Hub.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*wsClient]bool
	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan []byte
}

// NewHub constructs an idle Hub; call Run to start its loop.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan []byte, WebSocketBufferSize),
	}
}

// Run drives the hub's register/unregister/broadcast loop until ctxDone
// is closed.
func (h *Hub) Run(ctxDone <-chan struct{}) {
	for {
		select {
		case <-ctxDone:
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) broadcastJSON(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
	}
}

// BroadcastState pushes a full dashboard snapshot to every client.
func (h *Hub) BroadcastState(state DashboardState) {
	h.broadcastJSON(WSMessage{Type: WSTypeStateUpdate, Data: state})
}

// BroadcastTickSummary pushes the one-line state tally a Supervisor
// publishes after each tick (internal/eventbus KindTickSummary).
func (h *Hub) BroadcastTickSummary(summary string) {
	h.broadcastJSON(WSMessage{Type: WSTypeTickSummary, Data: summary})
}

// ClientCount reports how many dashboard clients are currently attached.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
		// The dashboard never sends commands; any inbound frame just
		// confirms the connection is alive.
	}
}

func (c *wsClient) writePump() {
	defer c.conn.Close()
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
