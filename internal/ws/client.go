package ws

import (
	"log/slog"
	"time"

	"chatter/internal/models"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message
	writeWait = 10 * time.Second

	// Time allowed to read next pong message
	pongWait = 60 * time.Second

	// Send pings with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Max message size
	maxMessageSize = 512 * 1024 // 512 KB

	sendBufferSize = 256
)

// Client is one accepted connection. The identity is fixed at accept time.
type Client struct {
	gateway  *Gateway
	conn     *websocket.Conn
	send     chan []byte
	connId   string
	identity models.Identity

	// rooms this client joined; guarded by the hub lock
	rooms map[string]bool
}

func newClient(g *Gateway, conn *websocket.Conn, connId string, identity models.Identity) *Client {
	return &Client{
		gateway:  g,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		connId:   connId,
		identity: identity,
		rooms:    make(map[string]bool),
	}
}

func (c *Client) ConnId() string {
	return c.connId
}

func (c *Client) Identity() models.Identity {
	return c.identity
}

// ReadPump reads frames and dispatches them one at a time.
func (c *Client) ReadPump() {
	defer func() {
		c.gateway.disconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("[CLIENT] Unexpected close", "conn", c.connId, "user", c.identity.UserId, "error", err)
			}
			break
		}

		c.gateway.handle(c, message)
	}
}

// WritePump writes queued frames and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				slog.Error("[CLIENT] Failed to get writer", "conn", c.connId, "user", c.identity.UserId, "error", err)
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				slog.Error("[CLIENT] Failed to close writer", "conn", c.connId, "user", c.identity.UserId, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.Error("[CLIENT] Failed to send ping", "conn", c.connId, "user", c.identity.UserId, "error", err)
				return
			}
		}
	}
}
