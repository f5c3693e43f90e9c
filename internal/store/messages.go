package store

import (
	"context"
	"errors"
	"fmt"

	"chatter/internal/models"

	"gorm.io/gorm"
)

type Messages struct {
	db *gorm.DB
}

func NewMessages(db *gorm.DB) *Messages {
	return &Messages{db: db}
}

// SaveMessage persists m and fills in its server timestamps.
func (r *Messages) SaveMessage(ctx context.Context, m *models.Message) error {
	row := messageRow{
		Id:           m.Id,
		GroupId:      m.GroupId,
		UserId:       m.UserId,
		Username:     m.Username,
		ProfileImage: m.ProfileImage,
		Type:         string(m.Type),
		Content:      m.Content,
		ImageURL:     m.ImageURL,
		Embedding:    m.Embedding,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	m.CreatedAt = row.CreatedAt
	m.UpdatedAt = row.UpdatedAt
	return nil
}

// ListByGroup returns every message in groupId in ascending creation order.
func (r *Messages) ListByGroup(ctx context.Context, groupId string) ([]models.Message, error) {
	var rows []messageRow
	err := r.db.WithContext(ctx).
		Where("group_id = ?", groupId).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	msgs := make([]models.Message, 0, len(rows))
	for i := range rows {
		msgs = append(msgs, rows[i].toModel())
	}
	return msgs, nil
}

func (r *Messages) FindById(ctx context.Context, id string) (*models.Message, error) {
	var row messageRow
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find message: %w", err)
	}
	m := row.toModel()
	return &m, nil
}

func (r *Messages) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&messageRow{}, "id = ?", id)
	if err := result.Error; err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (row *messageRow) toModel() models.Message {
	return models.Message{
		Id:           row.Id,
		GroupId:      row.GroupId,
		UserId:       row.UserId,
		Username:     row.Username,
		ProfileImage: row.ProfileImage,
		Type:         models.MessageType(row.Type),
		Content:      row.Content,
		ImageURL:     row.ImageURL,
		Embedding:    row.Embedding,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}
