package ws

import (
	"log/slog"
	"net/http"

	"chatter/internal/auth"
	"chatter/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict to configured frontend origins once they are part of Config
		return true
	},
}

// ServeWS authenticates the handshake, upgrades the connection and starts its
// pumps. A missing or invalid token refuses the connection.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	slog.Info("[WS] New WebSocket connection request", "remote", r.RemoteAddr)

	identity, err := g.tokens.Validate(auth.ExtractTokenFromRequest(r))
	if err != nil {
		slog.Warn("[WS] Rejected unauthenticated connection", "remote", r.RemoteAddr, "error", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("[WS] Failed to upgrade connection", "error", err)
		return
	}

	client := newClient(g, conn, uuid.NewString(), identity)
	if err := g.hub.Register(client); err != nil {
		slog.Warn("[WS] Refusing connection", "error", err)
		conn.Close()
		return
	}
	g.registry.Register(client.connId, identity)

	g.hub.SendTo(client, models.Event{
		Type: models.EventConnection,
		Data: models.ConnectionData{
			Status:   "connected",
			ClientId: client.connId,
			Message:  "Successfully connected to chat server",
			User:     identity,
		},
	})

	slog.Info("[WS] Client connected", "conn", client.connId, "user", identity.UserId, "username", identity.Username)

	go client.WritePump()
	go client.ReadPump()
}
