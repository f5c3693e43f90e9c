// Package account registers users and logs them in.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"chatter/internal/auth"
	"chatter/internal/chat"
	"chatter/internal/media"
	"chatter/internal/models"
	"chatter/internal/store"

	"github.com/google/uuid"
)

var usernamePattern = regexp.MustCompile(`^[a-z][a-z0-9]*$`)

type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

type BlobStore interface {
	Upload(ctx context.Context, data []byte, contentType, key string) (string, error)
	Sign(ctx context.Context, rawURL string) (string, error)
}

type TokenIssuer interface {
	Issue(id models.Identity) (string, error)
}

type Service struct {
	users  UserStore
	blobs  BlobStore
	tokens TokenIssuer
	now    func() time.Time
}

func NewService(users UserStore, blobs BlobStore, tokens TokenIssuer) *Service {
	return &Service{users: users, blobs: blobs, tokens: tokens, now: time.Now}
}

type RegisterRequest struct {
	Username     string
	Email        string
	Password     string
	ProfileImage *chat.Image
}

// Register creates a user. The profile image, when given, is uploaded before
// the user is stored.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)

	if !usernamePattern.MatchString(req.Username) {
		return nil, fmt.Errorf("%w: username must start with a letter and contain only lowercase letters and numbers", chat.ErrValidation)
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return nil, fmt.Errorf("%w: email must be a valid address", chat.ErrValidation)
	}
	if req.Password == "" {
		return nil, fmt.Errorf("%w: password is required", chat.ErrValidation)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Id:           uuid.NewString(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
	}

	if img := req.ProfileImage; img != nil {
		if err := media.ValidateImage(img.ContentType, len(img.Data)); err != nil {
			return nil, fmt.Errorf("%w: %v", chat.ErrValidation, err)
		}
		key := fmt.Sprintf("user/%s-%d", req.Username, s.now().UnixMilli())
		user.ProfileImage, err = s.blobs.Upload(ctx, img.Data, img.ContentType, key)
		if err != nil {
			slog.Error("[ACCOUNT] Failed to upload profile image", "user", req.Username, "error", err)
			return nil, fmt.Errorf("%w: failed to upload profile image", chat.ErrValidation)
		}
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("%w: email or username already exists", chat.ErrValidation)
		}
		return nil, fmt.Errorf("%w: %v", chat.ErrPersistence, err)
	}

	slog.Info("[ACCOUNT] User registered", "user", user.Id, "username", user.Username)
	return s.present(ctx, user), nil
}

// Login checks the credentials and returns a bearer token for the user.
func (s *Service) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	user, err := s.users.FindByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, store.ErrNotFound) {
		return "", nil, fmt.Errorf("%w: invalid credentials", chat.ErrUnauthorized)
	}
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", chat.ErrPersistence, err)
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return "", nil, fmt.Errorf("%w: invalid credentials", chat.ErrUnauthorized)
	}

	token, err := s.tokens.Issue(user.Identity())
	if err != nil {
		return "", nil, err
	}
	return token, s.present(ctx, user), nil
}

// present returns a copy of u with a signed profile image URL.
func (s *Service) present(ctx context.Context, u *models.User) *models.User {
	out := *u
	if out.ProfileImage != "" {
		if signed, err := s.blobs.Sign(ctx, out.ProfileImage); err == nil {
			out.ProfileImage = signed
		}
	}
	return &out
}
