package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chatter/internal/models"

	"gorm.io/gorm"
)

// Groups stores groups and their member lists. It is also the membership
// oracle consulted before every room operation; nothing is cached.
type Groups struct {
	db *gorm.DB
}

func NewGroups(db *gorm.DB) *Groups {
	return &Groups{db: db}
}

// IsMember reports whether userId currently belongs to groupId.
func (r *Groups) IsMember(ctx context.Context, groupId, userId string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&memberRow{}).
		Where("group_id = ? AND user_id = ?", groupId, userId).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return n > 0, nil
}

// FindGroup loads a group with its members.
func (r *Groups) FindGroup(ctx context.Context, groupId string) (*models.Group, error) {
	var row groupRow
	err := r.db.WithContext(ctx).Preload("Members").First(&row, "id = ?", groupId).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find group: %w", err)
	}
	return row.toModel(), nil
}

// Create stores g and its members in one transaction.
func (r *Groups) Create(ctx context.Context, g *models.Group) error {
	row := groupRow{Id: g.Id, Name: g.Name, Image: g.Image}
	for _, m := range g.Members {
		row.Members = append(row.Members, memberRow{
			GroupId:      g.Id,
			UserId:       m.UserId,
			Username:     m.Username,
			ProfileImage: m.ProfileImage,
			Role:         string(m.Role),
		})
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}
	g.CreatedAt = row.CreatedAt
	g.UpdatedAt = row.UpdatedAt
	return nil
}

// RemoveMember deletes userId from groupId's member list.
func (r *Groups) RemoveMember(ctx context.Context, groupId, userId string) error {
	result := r.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupId, userId).
		Delete(&memberRow{})
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return r.touch(r.db.WithContext(ctx), groupId)
}

// TransferOwnership demotes fromUserId and promotes toUserId atomically so the
// group never has zero or two owners.
func (r *Groups) TransferOwnership(ctx context.Context, groupId, fromUserId, toUserId string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		demote := tx.Model(&memberRow{}).
			Where("group_id = ? AND user_id = ? AND role = ?", groupId, fromUserId, models.RoleOwner).
			Update("role", string(models.RoleMember))
		if demote.Error != nil {
			return fmt.Errorf("failed to demote owner: %w", demote.Error)
		}
		if demote.RowsAffected == 0 {
			return ErrNotFound
		}

		promote := tx.Model(&memberRow{}).
			Where("group_id = ? AND user_id = ?", groupId, toUserId).
			Update("role", string(models.RoleOwner))
		if promote.Error != nil {
			return fmt.Errorf("failed to promote owner: %w", promote.Error)
		}
		if promote.RowsAffected == 0 {
			return ErrNotFound
		}
		return r.touch(tx, groupId)
	})
}

// ListByMemberRole returns the groups where userId holds role.
func (r *Groups) ListByMemberRole(ctx context.Context, userId string, role models.Role) ([]*models.Group, error) {
	var rows []groupRow
	err := r.db.WithContext(ctx).
		Preload("Members").
		Where("id IN (?)", r.db.Model(&memberRow{}).
			Select("group_id").
			Where("user_id = ? AND role = ?", userId, string(role))).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	groups := make([]*models.Group, 0, len(rows))
	for i := range rows {
		groups = append(groups, rows[i].toModel())
	}
	return groups, nil
}

func (r *Groups) touch(tx *gorm.DB, groupId string) error {
	if err := tx.Model(&groupRow{}).Where("id = ?", groupId).Update("updated_at", time.Now()).Error; err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}
	return nil
}

func (row *groupRow) toModel() *models.Group {
	g := &models.Group{
		Id:        row.Id,
		Name:      row.Name,
		Image:     row.Image,
		Members:   make([]models.Member, 0, len(row.Members)),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	for _, m := range row.Members {
		g.Members = append(g.Members, models.Member{
			UserId:       m.UserId,
			Username:     m.Username,
			ProfileImage: m.ProfileImage,
			Role:         models.Role(m.Role),
		})
	}
	return g
}
