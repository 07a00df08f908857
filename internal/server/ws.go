package server

import (
	"net/http"

	"github.com/gorilla/websocket"

	ws "camrelay/internal/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // control panel and uploader run on foreign origins
	},
}

// handleWebSocket upgrades the connection and hands it to the hub.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := ws.NewClient(s.hub, conn)
	s.logger.Info("client connected", "session", client.SessionID)
	s.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
