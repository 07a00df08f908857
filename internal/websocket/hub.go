package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client represents a WebSocket connection
type Client struct {
	Hub       *Hub
	Conn      *websocket.Conn
	Send      chan []byte
	SessionID string

	mu     sync.Mutex
	closed bool
}

// queue enqueues a message for delivery without blocking. It reports
// false when the client is gone or its buffer is full.
func (c *Client) queue(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- message:
		return true
	default:
		return false
	}
}

// NewClient wraps an upgraded connection with a fresh session identifier.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		Hub:       hub,
		Conn:      conn,
		Send:      make(chan []byte, 256),
		SessionID: uuid.NewString(),
	}
}

// Hub maintains the set of connected clients and broadcasts messages
type Hub struct {
	Clients    map[*Client]bool
	Broadcast  chan []byte
	Register   chan *Client
	Unregister chan *Client
	Mu         sync.RWMutex
}

// Event names on the realtime channel
const (
	EVENT_SERVER_INFO = "server_info"
	EVENT_COMMAND     = "command"
	EVENT_PING        = "ping"
	EVENT_PONG        = "pong"
	EVENT_NEW_PHOTO   = "new_photo"
)

// Envelope carries just enough of an inbound message to dispatch on.
// Command payloads are relayed as raw bytes, never re-interpreted.
type Envelope struct {
	Event string `json:"event"`
	Type  string `json:"type,omitempty"`
}

// ServerInfoMessage greets a client right after it connects.
type ServerInfoMessage struct {
	Event     string  `json:"event"`
	Message   string  `json:"message"`
	Time      float64 `json:"time"`
	SessionID string  `json:"sessionId"`
}

// PongMessage answers an application-level ping, to the sender only.
type PongMessage struct {
	Event string  `json:"event"`
	Time  float64 `json:"time"`
}

// NewPhotoMessage announces a stored upload to every client.
type NewPhotoMessage struct {
	Event       string `json:"event"`
	Filename    string `json:"filename"`
	Timestamp   int64  `json:"timestamp"`
	HasLocation bool   `json:"has_location"`
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		Clients:    make(map[*Client]bool),
		Broadcast:  make(chan []byte, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// NotifyNewPhoto broadcasts a new_photo event to all connected clients.
// Fire-and-forget: there is no acknowledgment and no replay for clients
// that connect later.
func (h *Hub) NotifyNewPhoto(filename string, timestamp int64, hasLocation bool) {
	h.Broadcast <- mustMarshal(NewPhotoMessage{
		Event:       EVENT_NEW_PHOTO,
		Filename:    filename,
		Timestamp:   timestamp,
		HasLocation: hasLocation,
	})
}

// ClientCount returns the current membership size.
func (h *Hub) ClientCount() int {
	h.Mu.RLock()
	defer h.Mu.RUnlock()
	return len(h.Clients)
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
