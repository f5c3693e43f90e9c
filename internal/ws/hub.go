package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"chatter/internal/chat"
	"chatter/internal/models"

	"github.com/goccy/go-json"
)

var (
	ErrHubClosed    = errors.New("hub is not running")
	ErrNotConnected = errors.New("connection is no longer registered")
)

// MembershipOracle answers whether a user currently belongs to a group.
type MembershipOracle interface {
	IsMember(ctx context.Context, groupId, userId string) (bool, error)
}

// Relay carries room broadcasts to every gateway instance, this one included.
type Relay interface {
	Publish(ctx context.Context, msg *models.BroadcastMessage) error
}

// outbound is one queued delivery: a room or global broadcast, or a frame for
// a single target connection.
type outbound struct {
	message *models.BroadcastMessage
	target  *Client
}

// Hub tracks live connections and the group rooms they have joined, and
// delivers events to them. Every write to a client's send channel, and every
// close of it, happens on the Run goroutine.
type Hub struct {
	// Connections by connection id
	clients map[string]*Client

	// Map: groupId -> Set of clients
	rooms map[string]map[*Client]bool

	// Lock for thread-safe access
	mu sync.RWMutex

	// Set under mu once closeAll has run; guards Register
	closed bool

	unregister chan *Client
	outbound   chan outbound
	done       chan struct{}
	stopOnce   sync.Once

	oracle MembershipOracle
	relay  Relay
}

func NewHub(oracle MembershipOracle) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[*Client]bool),
		unregister: make(chan *Client),
		outbound:   make(chan outbound, 256),
		done:       make(chan struct{}),
		oracle:     oracle,
	}
}

// SetRelay routes room broadcasts through r. Call before Run.
func (h *Hub) SetRelay(r Relay) {
	h.relay = r
}

// Run is the hub event loop. It returns when ctx is cancelled, closing every
// remaining connection's send channel.
func (h *Hub) Run(ctx context.Context) error {
	slog.Info("[HUB] Starting hub event loop")
	defer h.stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("[HUB] Stopping hub event loop", "clients", h.ClientCount())
			h.closeAll()
			return nil

		case client := <-h.unregister:
			h.unregisterClient(client)

		case out := <-h.outbound:
			if out.target != nil {
				h.sendDirect(out.target, out.message.Payload)
				continue
			}
			slog.Debug("[HUB] Received broadcast message", "group", out.message.GroupId, "size", len(out.message.Payload))
			h.broadcastToRoom(out.message)
		}
	}
}

func (h *Hub) stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Register adds a freshly accepted connection. It is in no rooms yet.
func (h *Hub) Register(client *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHubClosed
	}
	h.clients[client.connId] = client
	slog.Info("[HUB] Client registered", "conn", client.connId, "user", client.identity.UserId, "clients", len(h.clients))
	return nil
}

// Unregister removes client from the hub and every room it joined.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.connId] != client {
		return
	}
	h.dropLocked(client)

	slog.Info("[HUB] Client unregistered", "conn", client.connId, "user", client.identity.UserId, "clients", len(h.clients))
}

// dropLocked must be called with mu held, on the Run goroutine.
func (h *Hub) dropLocked(client *Client) {
	delete(h.clients, client.connId)
	for groupId := range client.rooms {
		h.removeFromRoomLocked(client, groupId)
	}
	close(client.send)
}

func (h *Hub) removeFromRoomLocked(client *Client, groupId string) {
	delete(client.rooms, groupId)
	clients, ok := h.rooms[groupId]
	if !ok {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		slog.Debug("[HUB] Room is now empty, removing", "group", groupId)
		delete(h.rooms, groupId)
	}
}

// Join adds client to groupId's room if its user is a member of the group
// right now. The membership lookup runs without holding the hub lock.
func (h *Hub) Join(ctx context.Context, client *Client, groupId string) error {
	ok, err := h.oracle.IsMember(ctx, groupId, client.identity.UserId)
	if err != nil {
		return fmt.Errorf("%w: checking membership: %v", chat.ErrPersistence, err)
	}
	if !ok {
		return chat.ErrNotAMember
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.connId] != client {
		return ErrNotConnected
	}
	if h.rooms[groupId] == nil {
		h.rooms[groupId] = make(map[*Client]bool)
	}
	h.rooms[groupId][client] = true
	client.rooms[groupId] = true

	slog.Info("[HUB] Client joined room", "conn", client.connId, "user", client.identity.UserId, "group", groupId, "roomSize", len(h.rooms[groupId]))
	return nil
}

// Leave removes client from groupId's room. It never checks membership.
func (h *Hub) Leave(client *Client, groupId string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeFromRoomLocked(client, groupId)
	slog.Info("[HUB] Client left room", "conn", client.connId, "group", groupId)
}

// InRoom reports whether client is currently in groupId's room.
func (h *Hub) InRoom(client *Client, groupId string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[groupId][client]
}

// BroadcastToGroup sends an event to groupId's room, skipping the connection
// named by excludeConn.
func (h *Hub) BroadcastToGroup(groupId, eventType string, data any, excludeConn string) {
	h.publish(groupId, eventType, data, excludeConn)
}

// BroadcastAll sends an event to every connection.
func (h *Hub) BroadcastAll(eventType string, data any) {
	h.publish("", eventType, data, "")
}

func (h *Hub) publish(groupId, eventType string, data any, excludeConn string) {
	payload, err := encodeEvent(models.Event{
		Type:      eventType,
		GroupId:   groupId,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	})
	if err != nil {
		slog.Error("[HUB] Failed to marshal event", "type", eventType, "group", groupId, "error", err)
		return
	}

	message := &models.BroadcastMessage{GroupId: groupId, Exclude: excludeConn, Payload: payload}

	if h.relay != nil {
		err := h.relay.Publish(context.Background(), message)
		if err == nil {
			return
		}
		slog.Error("[HUB] Relay publish failed, delivering locally", "type", eventType, "group", groupId, "error", err)
	}
	h.Deliver(message)
}

// Deliver hands a pre-encoded message to the event loop for local delivery.
func (h *Hub) Deliver(message *models.BroadcastMessage) {
	select {
	case h.outbound <- outbound{message: message}:
	case <-h.done:
	}
}

// SendTo queues an event for a single connection. Frames for one connection
// keep the order they were queued in, broadcasts included.
func (h *Hub) SendTo(client *Client, ev models.Event) {
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}
	payload, err := encodeEvent(ev)
	if err != nil {
		slog.Error("[HUB] Failed to marshal event", "type", ev.Type, "conn", client.connId, "error", err)
		return
	}

	select {
	case h.outbound <- outbound{message: &models.BroadcastMessage{Payload: payload}, target: client}:
	case <-h.done:
	}
}

func (h *Hub) sendDirect(client *Client, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.connId] != client {
		return
	}
	h.trySendLocked(client, payload)
}

func (h *Hub) broadcastToRoom(message *models.BroadcastMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var targets []*Client
	if message.GroupId == "" {
		for _, client := range h.clients {
			targets = append(targets, client)
		}
	} else {
		for client := range h.rooms[message.GroupId] {
			targets = append(targets, client)
		}
	}

	sentCount := 0
	failedCount := 0
	for _, client := range targets {
		if client.connId == message.Exclude {
			continue
		}
		if h.trySendLocked(client, message.Payload) {
			sentCount++
		} else {
			failedCount++
		}
	}

	slog.Debug("[HUB] Broadcast complete", "group", message.GroupId, "sent", sentCount, "failed", failedCount)
}

// trySendLocked queues payload without blocking. A client whose buffer is
// full is dropped.
func (h *Hub) trySendLocked(client *Client, payload []byte) bool {
	select {
	case client.send <- payload:
		return true
	default:
		slog.Warn("[HUB] Client buffer full, disconnecting", "conn", client.connId, "user", client.identity.UserId)
		h.dropLocked(client)
		return false
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for _, client := range h.clients {
		h.dropLocked(client)
	}
}

// ClientCount returns the number of live connections on this instance.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomClientCount returns the number of connections in groupId's room.
func (h *Hub) RoomClientCount(groupId string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[groupId])
}

func encodeEvent(ev models.Event) ([]byte, error) {
	return json.Marshal(ev)
}
