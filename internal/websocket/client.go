package websocket

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
)

// Run starts the hub's message processing loop. Membership changes and
// broadcasts are serialized here; a broadcast never observes a
// half-updated client set.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			// Greet before the client becomes eligible for broadcasts.
			// Send is fresh and buffered, so this never blocks.
			client.Send <- mustMarshal(ServerInfoMessage{
				Event:     EVENT_SERVER_INFO,
				Message:   "connected",
				Time:      nowSeconds(),
				SessionID: client.SessionID,
			})
			h.Mu.Lock()
			h.Clients[client] = true
			h.Mu.Unlock()

		case client := <-h.Unregister:
			h.drop(client)

		case message := <-h.Broadcast:
			h.Mu.RLock()
			clients := make([]*Client, 0, len(h.Clients))
			for client := range h.Clients {
				clients = append(clients, client)
			}
			h.Mu.RUnlock()

			// Relayed to every connected client, sender included.
			// A client with a full send buffer is dropped rather than
			// allowed to stall delivery to the rest.
			for _, client := range clients {
				if !client.queue(message) {
					slog.Warn("dropping slow client", "session", client.SessionID)
					h.drop(client)
				}
			}
		}
	}
}

// drop removes a client from the membership set and closes its send
// channel. Idempotent: the read pump and the broadcast path may both
// report the same dead client.
func (h *Hub) drop(client *Client) {
	h.Mu.Lock()
	defer h.Mu.Unlock()
	if _, ok := h.Clients[client]; ok {
		delete(h.Clients, client)
		client.mu.Lock()
		client.closed = true
		client.mu.Unlock()
		close(client.Send)
	}
}

// ReadPump pumps messages from the WebSocket connection to the hub
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("websocket read error", "session", c.SessionID, "error", err)
			}
			break
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			slog.Debug("invalid message format", "session", c.SessionID, "error", err)
			continue
		}

		switch env.Event {
		case EVENT_COMMAND:
			// Opaque relay: the hub never validates or interprets the
			// command type.
			slog.Info("command relayed", "session", c.SessionID, "type", env.Type)
			c.Hub.Broadcast <- message

		case EVENT_PING:
			// Liveness probe, answered to the requesting client only. A
			// client that cannot take its own heartbeat reply is as dead
			// as one that stalls a broadcast, so it is dropped the same way.
			if !c.queue(mustMarshal(PongMessage{Event: EVENT_PONG, Time: nowSeconds()})) {
				slog.Warn("dropping unresponsive client", "session", c.SessionID)
				c.Hub.drop(c)
			}

		default:
			slog.Debug("ignoring unknown event", "session", c.SessionID, "event", env.Event)
		}
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current WebSocket message
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func mustMarshal(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal message", "error", err)
		return []byte("{}")
	}
	return b
}
