package user

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/mkravets/contacts-api/internal/api"
)

// AvatarKey builds a collision-free object key, keeping the original extension.
func AvatarKey(userID int64, filename string) string {
	return fmt.Sprintf("avatars/%d/%s%s", userID, uuid.New(), path.Ext(filename))
}

var _ UserService = (*UserServiceImpl)(nil)

// Uploader stores a file on the image host and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error)
}

type UserService interface {
	// ChangeAvatar uploads the image and records its URL on the user.
	ChangeAvatar(ctx context.Context, userID int64, filename, contentType string, body io.Reader, size int64) (string, error)
}

type UserServiceImpl struct {
	repo     UserRepo
	uploader Uploader
	logger   *slog.Logger
}

func NewUserService(repo UserRepo, uploader Uploader, logger *slog.Logger) *UserServiceImpl {
	return &UserServiceImpl{
		repo:     repo,
		uploader: uploader,
		logger:   logger,
	}
}

func (s *UserServiceImpl) ChangeAvatar(ctx context.Context, userID int64, filename, contentType string, body io.Reader, size int64) (string, error) {
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("avatar must be an image: %w", api.ErrBadRequest)
	}

	key := AvatarKey(userID, filename)
	avatarURL, err := s.uploader.Upload(ctx, key, contentType, body, size)
	if err != nil {
		return "", fmt.Errorf("upload avatar: %w", err)
	}

	if _, err := s.repo.Update(ctx, userID, api.UserUpdate{AvatarURL: &avatarURL}); err != nil {
		return "", err
	}
	return avatarURL, nil
}
