package store

import (
	"context"
	"errors"
	"fmt"

	"chatter/internal/models"

	"gorm.io/gorm"
)

type Users struct {
	db *gorm.DB
}

func NewUsers(db *gorm.DB) *Users {
	return &Users{db: db}
}

// Create stores u. Taken usernames or emails yield ErrDuplicate.
func (r *Users) Create(ctx context.Context, u *models.User) error {
	var n int64
	err := r.db.WithContext(ctx).Model(&userRow{}).
		Where("email = ? OR username = ?", u.Email, u.Username).
		Count(&n).Error
	if err != nil {
		return fmt.Errorf("failed to check user: %w", err)
	}
	if n > 0 {
		return ErrDuplicate
	}

	row := userRow{
		Id:           u.Id,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		ProfileImage: u.ProfileImage,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	u.CreatedAt = row.CreatedAt
	return nil
}

func (r *Users) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *Users) FindById(ctx context.Context, id string) (*models.User, error) {
	return r.first(ctx, "id = ?", id)
}

// FindByIds returns the users among ids that exist.
func (r *Users) FindByIds(ctx context.Context, ids []string) ([]*models.User, error) {
	var rows []userRow
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find users: %w", err)
	}
	users := make([]*models.User, 0, len(rows))
	for i := range rows {
		users = append(users, rows[i].toModel())
	}
	return users, nil
}

func (r *Users) first(ctx context.Context, query string, args ...any) (*models.User, error) {
	var row userRow
	if err := r.db.WithContext(ctx).Where(query, args...).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return row.toModel(), nil
}

func (row *userRow) toModel() *models.User {
	return &models.User{
		Id:           row.Id,
		Username:     row.Username,
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		ProfileImage: row.ProfileImage,
		CreatedAt:    row.CreatedAt,
	}
}
