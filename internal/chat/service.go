// Package chat runs the message fan-out pipeline: authorize the sender,
// persist the message and deliver it to the group's room.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chatter/internal/media"
	"chatter/internal/models"
	"chatter/internal/store"

	"github.com/google/uuid"
)

type MembershipOracle interface {
	IsMember(ctx context.Context, groupId, userId string) (bool, error)
}

type GroupFinder interface {
	FindGroup(ctx context.Context, groupId string) (*models.Group, error)
}

type MessageStore interface {
	SaveMessage(ctx context.Context, m *models.Message) error
	ListByGroup(ctx context.Context, groupId string) ([]models.Message, error)
	FindById(ctx context.Context, id string) (*models.Message, error)
	Delete(ctx context.Context, id string) error
}

type BlobStore interface {
	Upload(ctx context.Context, data []byte, contentType, key string) (string, error)
	Delete(ctx context.Context, ref string) error
	Sign(ctx context.Context, rawURL string) (string, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Broadcaster delivers an event to every connection in a group's room except
// excludeConn.
type Broadcaster interface {
	BroadcastToGroup(groupId, eventType string, data any, excludeConn string)
}

type TypingClearer interface {
	StopTyping(groupId, userId string) (models.TypingStoppedData, bool)
}

type Suggester interface {
	Suggest(ctx context.Context, history []models.Message, username string) []string
}

type Deps struct {
	Members   MembershipOracle
	Groups    GroupFinder
	Messages  MessageStore
	Blobs     BlobStore
	Embedder  Embedder
	Broadcast Broadcaster
	Typing    TypingClearer
	Replies   Suggester
}

type Service struct {
	Deps
	now func() time.Time
}

func NewService(deps Deps) *Service {
	return &Service{Deps: deps, now: time.Now}
}

// Image is an uploaded picture attached to a message.
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}

// SendText runs the pipeline for a text message. connId names the
// originating connection, if any, so the typing-stop event skips it.
func (s *Service) SendText(ctx context.Context, connId string, who models.Identity, groupId, content string) (*models.MessageView, error) {
	content = strings.TrimSpace(content)
	if groupId == "" || content == "" {
		return nil, fmt.Errorf("%w: group id and content are required", ErrValidation)
	}

	member, err := s.authorize(ctx, who, groupId)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		Id:           uuid.NewString(),
		GroupId:      groupId,
		UserId:       who.UserId,
		Username:     member.Username,
		ProfileImage: member.ProfileImage,
		Type:         models.MessageText,
		Content:      content,
		Embedding:    s.embed(ctx, content),
	}

	if err := s.persist(ctx, msg); err != nil {
		return nil, err
	}
	return s.deliver(ctx, connId, msg), nil
}

// SendImage is SendText with an upload to the blob store ahead of
// persistence. An empty caption becomes models.DefaultImageCaption.
func (s *Service) SendImage(ctx context.Context, connId string, who models.Identity, groupId, caption string, img Image) (*models.MessageView, error) {
	if groupId == "" {
		return nil, fmt.Errorf("%w: group id is required", ErrValidation)
	}
	if err := media.ValidateImage(img.ContentType, len(img.Data)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	member, err := s.authorize(ctx, who, groupId)
	if err != nil {
		return nil, err
	}

	content := strings.TrimSpace(caption)
	if content == "" {
		content = models.DefaultImageCaption
	}
	var embedding []float64
	if content != models.DefaultImageCaption {
		embedding = s.embed(ctx, content)
	}

	key := fmt.Sprintf("%s/%d-%s", media.KeySegment(groupId), s.now().UnixMilli(), media.KeySegment(img.Filename))
	imageURL, err := s.Blobs.Upload(ctx, img.Data, img.ContentType, key)
	if err != nil {
		return nil, fmt.Errorf("%w: uploading image: %v", ErrPersistence, err)
	}

	msg := &models.Message{
		Id:           uuid.NewString(),
		GroupId:      groupId,
		UserId:       who.UserId,
		Username:     member.Username,
		ProfileImage: member.ProfileImage,
		Type:         models.MessageImage,
		Content:      content,
		ImageURL:     imageURL,
		Embedding:    embedding,
	}

	if err := s.persist(ctx, msg); err != nil {
		if derr := s.Blobs.Delete(ctx, imageURL); derr != nil {
			slog.Warn("[CHAT] Failed to remove orphaned upload", "key", key, "error", derr)
		}
		return nil, err
	}
	return s.deliver(ctx, connId, msg), nil
}

// History returns the group's messages oldest first with signed URLs.
func (s *Service) History(ctx context.Context, who models.Identity, groupId string) ([]models.MessageView, error) {
	if err := s.checkMember(ctx, who, groupId); err != nil {
		return nil, err
	}

	msgs, err := s.Messages.ListByGroup(ctx, groupId)
	if err != nil {
		return nil, fmt.Errorf("%w: listing messages: %v", ErrPersistence, err)
	}

	views := make([]models.MessageView, 0, len(msgs))
	for i := range msgs {
		views = append(views, s.view(ctx, &msgs[i]))
	}
	return views, nil
}

// DeleteMessage removes one of who's own messages and tells the room.
func (s *Service) DeleteMessage(ctx context.Context, who models.Identity, messageId string) error {
	msg, err := s.Messages.FindById(ctx, messageId)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: message %s", ErrNotFound, messageId)
	}
	if err != nil {
		return fmt.Errorf("%w: finding message: %v", ErrPersistence, err)
	}
	if msg.UserId != who.UserId {
		return fmt.Errorf("%w: you can only delete your own messages", ErrForbidden)
	}

	if msg.ImageURL != "" {
		if err := s.Blobs.Delete(ctx, msg.ImageURL); err != nil {
			slog.Warn("[CHAT] Failed to delete message image", "message", msg.Id, "error", err)
		}
	}

	if err := s.Messages.Delete(ctx, msg.Id); err != nil {
		return fmt.Errorf("%w: deleting message: %v", ErrPersistence, err)
	}

	s.Broadcast.BroadcastToGroup(msg.GroupId, models.EventMessageDeleted,
		models.MessageDeletedData{Id: msg.Id, GroupId: msg.GroupId}, "")
	return nil
}

// SmartReplies returns three reply suggestions for who in groupId.
func (s *Service) SmartReplies(ctx context.Context, who models.Identity, groupId string) ([]string, error) {
	if err := s.checkMember(ctx, who, groupId); err != nil {
		return nil, err
	}

	history, err := s.Messages.ListByGroup(ctx, groupId)
	if err != nil {
		return nil, fmt.Errorf("%w: listing messages: %v", ErrPersistence, err)
	}
	return s.Replies.Suggest(ctx, history, who.Username), nil
}

func (s *Service) checkMember(ctx context.Context, who models.Identity, groupId string) error {
	if groupId == "" {
		return fmt.Errorf("%w: group id is required", ErrValidation)
	}
	ok, err := s.Members.IsMember(ctx, groupId, who.UserId)
	if err != nil {
		return fmt.Errorf("%w: checking membership: %v", ErrPersistence, err)
	}
	if !ok {
		return ErrNotAMember
	}
	return nil
}

// authorize covers pipeline steps one and two: the sender must be a member
// now, and the group must hold its member record.
func (s *Service) authorize(ctx context.Context, who models.Identity, groupId string) (*models.Member, error) {
	if err := s.checkMember(ctx, who, groupId); err != nil {
		return nil, err
	}

	group, err := s.Groups.FindGroup(ctx, groupId)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: group %s", ErrNotFound, groupId)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: loading group: %v", ErrPersistence, err)
	}

	member, ok := group.Member(who.UserId)
	if !ok {
		return nil, ErrMemberRecordMissing
	}
	return member, nil
}

func (s *Service) embed(ctx context.Context, text string) []float64 {
	vec, err := s.Embedder.Embed(ctx, text)
	if err != nil {
		slog.Warn("[CHAT] Embedding failed, storing message without one", "error", err)
		return nil
	}
	return vec
}

func (s *Service) persist(ctx context.Context, msg *models.Message) error {
	if err := s.Messages.SaveMessage(ctx, msg); err != nil {
		slog.Error("[CHAT] Failed to save message", "group", msg.GroupId, "user", msg.UserId, "error", err)
		return fmt.Errorf("%w: saving message: %v", ErrPersistence, err)
	}
	return nil
}

// deliver echoes the stored message to the whole room, sender included, then
// clears the sender's typing state.
func (s *Service) deliver(ctx context.Context, connId string, msg *models.Message) *models.MessageView {
	view := s.view(ctx, msg)
	s.Broadcast.BroadcastToGroup(msg.GroupId, models.EventGroupMessage, view, "")

	if stopped, ok := s.Typing.StopTyping(msg.GroupId, msg.UserId); ok {
		s.Broadcast.BroadcastToGroup(msg.GroupId, models.EventUserStoppedTyping, stopped, connId)
	}

	slog.Debug("[CHAT] Message delivered", "message", msg.Id, "group", msg.GroupId, "type", msg.Type)
	return &view
}

func (s *Service) view(ctx context.Context, msg *models.Message) models.MessageView {
	return models.MessageView{
		Id:               msg.Id,
		GroupId:          msg.GroupId,
		UserId:           msg.UserId,
		Username:         msg.Username,
		UserProfileImage: s.sign(ctx, msg.ProfileImage),
		Content:          msg.Content,
		Type:             msg.Type,
		ImageURL:         s.sign(ctx, msg.ImageURL),
		CreatedAt:        msg.CreatedAt,
		UpdatedAt:        msg.UpdatedAt,
	}
}

// sign falls back to the unsigned reference when signing fails.
func (s *Service) sign(ctx context.Context, ref string) string {
	if ref == "" {
		return ""
	}
	signed, err := s.Blobs.Sign(ctx, ref)
	if err != nil {
		slog.Warn("[CHAT] Failed to sign URL", "url", ref, "error", err)
		return ref
	}
	return signed
}
