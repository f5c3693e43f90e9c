// Package groups manages group lifecycle: creation, leaving, ownership
// transfer and listings.
package groups

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chatter/internal/chat"
	"chatter/internal/media"
	"chatter/internal/models"
	"chatter/internal/store"

	"github.com/google/uuid"
)

type GroupStore interface {
	Create(ctx context.Context, g *models.Group) error
	FindGroup(ctx context.Context, groupId string) (*models.Group, error)
	RemoveMember(ctx context.Context, groupId, userId string) error
	TransferOwnership(ctx context.Context, groupId, fromUserId, toUserId string) error
	ListByMemberRole(ctx context.Context, userId string, role models.Role) ([]*models.Group, error)
}

type UserFinder interface {
	FindByIds(ctx context.Context, ids []string) ([]*models.User, error)
}

type BlobStore interface {
	Upload(ctx context.Context, data []byte, contentType, key string) (string, error)
	Sign(ctx context.Context, rawURL string) (string, error)
}

type Service struct {
	groups GroupStore
	users  UserFinder
	blobs  BlobStore
	now    func() time.Time
}

func NewService(groups GroupStore, users UserFinder, blobs BlobStore) *Service {
	return &Service{groups: groups, users: users, blobs: blobs, now: time.Now}
}

type CreateRequest struct {
	Name string
	// MemberIds is a comma separated list of user ids.
	MemberIds string
	Image     *chat.Image
}

// Create makes a group owned by who. At least one other existing user must
// be listed.
func (s *Service) Create(ctx context.Context, who models.Identity, req CreateRequest) (*models.Group, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: group_name is required", chat.ErrValidation)
	}

	ids := ParseMemberIds(req.MemberIds)
	if !contains(ids, who.UserId) {
		ids = append(ids, who.UserId)
	}
	if len(ids) == 1 {
		return nil, fmt.Errorf("%w: at least one member (besides owner) must be provided", chat.ErrValidation)
	}

	users, err := s.users.FindByIds(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chat.ErrPersistence, err)
	}
	if len(users) != len(ids) {
		return nil, fmt.Errorf("%w: one or more member ids are invalid", chat.ErrValidation)
	}

	group := &models.Group{Id: uuid.NewString(), Name: name}

	if img := req.Image; img != nil {
		if err := media.ValidateImage(img.ContentType, len(img.Data)); err != nil {
			return nil, fmt.Errorf("%w: %v", chat.ErrValidation, err)
		}
		key := fmt.Sprintf("groups/%s-%d", media.KeySegment(name), s.now().UnixMilli())
		group.Image, err = s.blobs.Upload(ctx, img.Data, img.ContentType, key)
		if err != nil {
			slog.Error("[GROUPS] Failed to upload group image", "group", name, "error", err)
			return nil, fmt.Errorf("%w: failed to upload group image", chat.ErrValidation)
		}
	}

	byId := make(map[string]*models.User, len(users))
	for _, u := range users {
		byId[u.Id] = u
	}
	for _, id := range ids {
		u := byId[id]
		role := models.RoleMember
		if id == who.UserId {
			role = models.RoleOwner
		}
		group.Members = append(group.Members, models.Member{
			UserId:       u.Id,
			Username:     u.Username,
			ProfileImage: u.ProfileImage,
			Role:         role,
		})
	}

	if err := s.groups.Create(ctx, group); err != nil {
		return nil, fmt.Errorf("%w: %v", chat.ErrPersistence, err)
	}

	slog.Info("[GROUPS] Group created", "group", group.Id, "owner", who.UserId, "members", len(group.Members))
	return s.present(ctx, group), nil
}

// Leave removes who from the group. The owner has to transfer ownership
// first.
func (s *Service) Leave(ctx context.Context, who models.Identity, groupId string) (*models.Group, error) {
	group, err := s.find(ctx, groupId)
	if err != nil {
		return nil, err
	}

	member, ok := group.Member(who.UserId)
	if !ok {
		return nil, fmt.Errorf("%w: you are not a member of this group", chat.ErrValidation)
	}
	if member.Role == models.RoleOwner {
		return nil, fmt.Errorf("%w: group owner cannot leave the group", chat.ErrValidation)
	}

	if err := s.groups.RemoveMember(ctx, groupId, who.UserId); err != nil {
		return nil, fmt.Errorf("%w: %v", chat.ErrPersistence, err)
	}

	slog.Info("[GROUPS] Member left group", "group", groupId, "user", who.UserId)
	return s.reload(ctx, groupId)
}

// ChangeOwner hands ownership from who to newOwnerId.
func (s *Service) ChangeOwner(ctx context.Context, who models.Identity, groupId, newOwnerId string) (*models.Group, error) {
	if groupId == "" || newOwnerId == "" {
		return nil, fmt.Errorf("%w: group_id and new_owner_id are required", chat.ErrValidation)
	}

	group, err := s.find(ctx, groupId)
	if err != nil {
		return nil, err
	}

	owner, ok := group.Owner()
	if !ok || owner.UserId != who.UserId {
		return nil, fmt.Errorf("%w: only the group owner can transfer ownership", chat.ErrForbidden)
	}
	if _, ok := group.Member(newOwnerId); !ok {
		return nil, fmt.Errorf("%w: new owner must be a group member", chat.ErrValidation)
	}
	if newOwnerId == who.UserId {
		return s.present(ctx, group), nil
	}

	if err := s.groups.TransferOwnership(ctx, groupId, who.UserId, newOwnerId); err != nil {
		return nil, fmt.Errorf("%w: %v", chat.ErrPersistence, err)
	}

	slog.Info("[GROUPS] Ownership transferred", "group", groupId, "from", who.UserId, "to", newOwnerId)
	return s.reload(ctx, groupId)
}

// MemberGroups lists the groups where who is a plain member.
func (s *Service) MemberGroups(ctx context.Context, who models.Identity) ([]*models.Group, error) {
	return s.list(ctx, who.UserId, models.RoleMember)
}

// OwnedGroups lists the groups who owns.
func (s *Service) OwnedGroups(ctx context.Context, who models.Identity) ([]*models.Group, error) {
	return s.list(ctx, who.UserId, models.RoleOwner)
}

func (s *Service) Members(ctx context.Context, groupId string) ([]models.Member, error) {
	group, err := s.find(ctx, groupId)
	if err != nil {
		return nil, err
	}
	return s.present(ctx, group).Members, nil
}

func (s *Service) list(ctx context.Context, userId string, role models.Role) ([]*models.Group, error) {
	groups, err := s.groups.ListByMemberRole(ctx, userId, role)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chat.ErrPersistence, err)
	}
	for i, g := range groups {
		groups[i] = s.present(ctx, g)
	}
	return groups, nil
}

func (s *Service) find(ctx context.Context, groupId string) (*models.Group, error) {
	group, err := s.groups.FindGroup(ctx, groupId)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: group not found", chat.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chat.ErrPersistence, err)
	}
	return group, nil
}

func (s *Service) reload(ctx context.Context, groupId string) (*models.Group, error) {
	group, err := s.find(ctx, groupId)
	if err != nil {
		return nil, err
	}
	return s.present(ctx, group), nil
}

// present signs the group and member images on a copy of g.
func (s *Service) present(ctx context.Context, g *models.Group) *models.Group {
	out := *g
	out.Image = s.sign(ctx, g.Image)
	out.Members = make([]models.Member, len(g.Members))
	for i, m := range g.Members {
		m.ProfileImage = s.sign(ctx, m.ProfileImage)
		out.Members[i] = m
	}
	return &out
}

func (s *Service) sign(ctx context.Context, ref string) string {
	if ref == "" {
		return ""
	}
	signed, err := s.blobs.Sign(ctx, ref)
	if err != nil {
		slog.Warn("[GROUPS] Failed to sign URL", "url", ref, "error", err)
		return ref
	}
	return signed
}

// ParseMemberIds splits a comma separated id list, dropping blanks and
// repeats.
func ParseMemberIds(raw string) []string {
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		id = strings.TrimSpace(id)
		if id == "" || contains(ids, id) {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
