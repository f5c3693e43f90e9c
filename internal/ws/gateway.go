// Package ws is the realtime gateway: it accepts authenticated WebSocket
// connections, keeps group rooms and dispatches client events.
package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"chatter/internal/chat"
	"chatter/internal/models"
	"chatter/internal/presence"

	"github.com/goccy/go-json"
)

type TokenValidator interface {
	Validate(token string) (models.Identity, error)
}

// MessageSender runs the fan-out pipeline for a text message.
type MessageSender interface {
	SendText(ctx context.Context, connId string, who models.Identity, groupId, content string) (*models.MessageView, error)
}

type Gateway struct {
	hub      *Hub
	registry *presence.Registry
	typing   *presence.TypingTracker
	members  MembershipOracle
	messages MessageSender
	tokens   TokenValidator
}

func NewGateway(hub *Hub, registry *presence.Registry, typing *presence.TypingTracker, members MembershipOracle, messages MessageSender, tokens TokenValidator) *Gateway {
	return &Gateway{
		hub:      hub,
		registry: registry,
		typing:   typing,
		members:  members,
		messages: messages,
		tokens:   tokens,
	}
}

// ClientCount returns the number of live connections on this instance.
func (g *Gateway) ClientCount() int {
	return g.registry.Count()
}

func (g *Gateway) IsUserConnected(userId string) bool {
	return g.registry.IsUserConnected(userId)
}

// BroadcastAll sends a server event to every connection.
func (g *Gateway) BroadcastAll(eventType string, data any) {
	g.hub.BroadcastAll(eventType, data)
}

// handle dispatches one inbound frame. Handlers get a context that outlives
// the connection so a disconnect does not cut off a send in flight.
func (g *Gateway) handle(c *Client, raw []byte) {
	var in models.Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		slog.Warn("[CLIENT] Error unmarshaling message", "conn", c.connId, "error", err)
		g.sendError(c, "", fmt.Errorf("%w: malformed frame", chat.ErrValidation))
		return
	}

	ctx := context.Background()
	var err error

	switch in.Type {
	case models.EventJoinGroup:
		err = g.joinGroup(ctx, c, in)
	case models.EventLeaveGroup:
		err = g.leaveGroup(c, in)
	case models.EventStartTyping:
		err = g.startTyping(ctx, c, in)
	case models.EventStopTyping:
		err = g.stopTyping(c, in)
	case models.EventGroupMessage:
		err = g.groupMessage(ctx, c, in)
	case models.EventGetTypingUsers:
		err = g.getTypingUsers(ctx, c, in)
	default:
		slog.Warn("[CLIENT] Unknown event type", "type", in.Type, "conn", c.connId)
		err = fmt.Errorf("%w: unknown event type %q", chat.ErrValidation, in.Type)
	}

	if err != nil {
		slog.Debug("[CLIENT] Event rejected", "type", in.Type, "conn", c.connId, "user", c.identity.UserId, "error", err)
		g.sendError(c, in.Ack, err)
	}
}

func (g *Gateway) joinGroup(ctx context.Context, c *Client, in models.Inbound) error {
	req, err := decodeGroupRequest(in)
	if err != nil {
		return err
	}
	if err := g.hub.Join(ctx, c, req.GroupId); err != nil {
		return err
	}
	g.sendAck(c, in.Ack, req.GroupId, models.RoomAck{Status: "joined", GroupId: req.GroupId})
	return nil
}

func (g *Gateway) leaveGroup(c *Client, in models.Inbound) error {
	req, err := decodeGroupRequest(in)
	if err != nil {
		return err
	}
	g.hub.Leave(c, req.GroupId)
	g.sendAck(c, in.Ack, req.GroupId, models.RoomAck{Status: "left", GroupId: req.GroupId})
	return nil
}

func (g *Gateway) startTyping(ctx context.Context, c *Client, in models.Inbound) error {
	req, err := decodeGroupRequest(in)
	if err != nil {
		return err
	}
	if err := g.checkMember(ctx, c, req.GroupId); err != nil {
		return err
	}
	if data, ok := g.typing.StartTyping(req.GroupId, c.identity); ok {
		g.hub.BroadcastToGroup(req.GroupId, models.EventUserTyping, data, c.connId)
	}
	return nil
}

func (g *Gateway) stopTyping(c *Client, in models.Inbound) error {
	req, err := decodeGroupRequest(in)
	if err != nil {
		return err
	}
	if data, ok := g.typing.StopTyping(req.GroupId, c.identity.UserId); ok {
		g.hub.BroadcastToGroup(req.GroupId, models.EventUserStoppedTyping, data, c.connId)
	}
	return nil
}

func (g *Gateway) groupMessage(ctx context.Context, c *Client, in models.Inbound) error {
	var req models.GroupMessageRequest
	if err := json.Unmarshal(in.Data, &req); err != nil {
		return fmt.Errorf("%w: %v", chat.ErrValidation, err)
	}

	view, err := g.messages.SendText(ctx, c.connId, c.identity, req.GroupId, req.Message.Content)
	if err != nil {
		return err
	}
	g.sendAck(c, in.Ack, req.GroupId, models.SentAck{Status: "sent", MessageId: view.Id})
	return nil
}

func (g *Gateway) getTypingUsers(ctx context.Context, c *Client, in models.Inbound) error {
	req, err := decodeGroupRequest(in)
	if err != nil {
		return err
	}
	if err := g.checkMember(ctx, c, req.GroupId); err != nil {
		return err
	}
	g.sendAck(c, in.Ack, req.GroupId, models.TypingUsersData{
		GroupId:     req.GroupId,
		TypingUsers: g.typing.ListTyping(req.GroupId),
	})
	return nil
}

// disconnect runs once per connection when its read loop ends.
func (g *Gateway) disconnect(c *Client) {
	g.hub.Unregister(c)
	g.registry.Unregister(c.connId)

	for _, stopped := range g.typing.OnDisconnect(c.identity.UserId) {
		g.hub.BroadcastToGroup(stopped.GroupId, models.EventUserStoppedTyping, stopped, c.connId)
	}

	slog.Info("[WS] Client disconnected", "conn", c.connId, "user", c.identity.UserId)
}

func (g *Gateway) checkMember(ctx context.Context, c *Client, groupId string) error {
	ok, err := g.members.IsMember(ctx, groupId, c.identity.UserId)
	if err != nil {
		return fmt.Errorf("%w: checking membership: %v", chat.ErrPersistence, err)
	}
	if !ok {
		return chat.ErrNotAMember
	}
	return nil
}

func (g *Gateway) sendAck(c *Client, ack, groupId string, data any) {
	g.hub.SendTo(c, models.Event{Type: models.EventAck, GroupId: groupId, Ack: ack, Data: data})
}

func (g *Gateway) sendError(c *Client, ack string, err error) {
	msg := err.Error()
	if chat.Code(err) == "INTERNAL" && !errors.Is(err, ErrNotConnected) {
		msg = "internal error"
	}
	g.hub.SendTo(c, models.Event{
		Type: models.EventError,
		Ack:  ack,
		Data: models.ErrorData{Code: chat.Code(err), Message: msg},
	})
}

func decodeGroupRequest(in models.Inbound) (models.GroupRequest, error) {
	var req models.GroupRequest
	if len(in.Data) > 0 {
		if err := json.Unmarshal(in.Data, &req); err != nil {
			return req, fmt.Errorf("%w: %v", chat.ErrValidation, err)
		}
	}
	if req.GroupId == "" {
		return req, fmt.Errorf("%w: groupId is required", chat.ErrValidation)
	}
	return req, nil
}
