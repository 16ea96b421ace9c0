package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/mategroup/sso/internal/store"
	"github.com/mategroup/sso/types"
)

// MaxAvatarSize is the largest accepted avatar upload in bytes.
const MaxAvatarSize = 5 << 20

var extensionPattern = regexp.MustCompile(`^[a-z0-9]{1,5}$`)

var allowedAvatarTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// BlobStore is the subset of the object storage used for avatars.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
}

// Upload describes one incoming avatar file.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// AvatarService links blobs in object storage to identity records.
type AvatarService struct {
	users    UserRepository
	blobs    BlobStore
	reporter ErrorReporter
	logger   *slog.Logger
	now      func() time.Time
}

func NewAvatarService(users UserRepository, blobs BlobStore, reporter ErrorReporter, logger *slog.Logger) *AvatarService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AvatarService{
		users:    users,
		blobs:    blobs,
		reporter: reporter,
		logger:   logger,
		now:      time.Now,
	}
}

// ValidateUpload checks type and size without touching storage.
func ValidateUpload(contentType string, size int64) error {
	if _, ok := allowedAvatarTypes[normalizeContentType(contentType)]; !ok {
		return validationError("Invalid file type. Only JPEG, PNG, GIF, and WebP are allowed.")
	}
	if size > MaxAvatarSize {
		return validationError("File too large. Maximum size is 5MB.")
	}
	return nil
}

// Upload replaces the user's avatar. A failure to delete the previous blob is
// logged and does not stop the upload.
func (s *AvatarService) Upload(ctx context.Context, userID string, up Upload) (types.AvatarRef, error) {
	if err := ValidateUpload(up.ContentType, up.Size); err != nil {
		return types.AvatarRef{}, err
	}

	user, err := s.load(ctx, userID)
	if err != nil {
		return types.AvatarRef{}, err
	}

	if user.Avatar != nil {
		if err := s.bestEffortCleanup(ctx, user.Avatar.Path); err != nil {
			s.logger.Warn("failed to delete previous avatar",
				"user_id", user.ID, "path", user.Avatar.Path, "error", err)
		}
	}

	contentType := normalizeContentType(up.ContentType)
	key := fmt.Sprintf("users/%s/%d.%s", user.ID, s.now().UnixMilli(), avatarExtension(up.Filename, contentType))
	if err := s.blobs.Put(ctx, key, up.Body, up.Size, contentType); err != nil {
		s.logger.Error("avatar upload failed", "user_id", user.ID, "path", key, "error", err)
		s.capture(ctx, err)
		return types.AvatarRef{}, upstreamError("Failed to upload file", err)
	}

	ref := types.AvatarRef{URL: s.blobs.PublicURL(key), Path: key}
	if err := s.users.SetAvatar(ctx, user.ID, ref); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.AvatarRef{}, notFoundError("User not found")
		}
		s.capture(ctx, err)
		return types.AvatarRef{}, internalError("Internal server error", err)
	}
	return ref, nil
}

func (s *AvatarService) Remove(ctx context.Context, userID string) error {
	user, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if user.Avatar == nil {
		return notFoundError("No avatar to delete")
	}

	if err := s.blobs.Delete(ctx, user.Avatar.Path); err != nil {
		s.logger.Error("avatar delete failed", "user_id", user.ID, "path", user.Avatar.Path, "error", err)
		s.capture(ctx, err)
		return upstreamError("Failed to delete file", err)
	}
	if err := s.users.ClearAvatar(ctx, user.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFoundError("User not found")
		}
		s.capture(ctx, err)
		return internalError("Internal server error", err)
	}
	return nil
}

// Get returns the avatar URL, or nil when the user has none.
func (s *AvatarService) Get(ctx context.Context, userID string) (*string, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Avatar == nil {
		return nil, nil
	}
	url := user.Avatar.URL
	return &url, nil
}

// bestEffortCleanup deletes a stale blob. The returned error is for the
// caller to log; it must never fail the surrounding operation.
func (s *AvatarService) bestEffortCleanup(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	if err := s.blobs.Delete(ctx, path); err != nil {
		s.capture(ctx, err)
		return err
	}
	return nil
}

func (s *AvatarService) load(ctx context.Context, userID string) (types.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, notFoundError("User not found")
		}
		s.capture(ctx, err)
		return types.User{}, internalError("Internal server error", err)
	}
	return user, nil
}

func (s *AvatarService) capture(ctx context.Context, err error) {
	if s.reporter != nil {
		s.reporter.Capture(ctx, err)
	}
}

func normalizeContentType(contentType string) string {
	mediaType, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mediaType))
}

// avatarExtension prefers the uploaded file's extension and falls back to the MIME type.
func avatarExtension(filename, contentType string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if extensionPattern.MatchString(ext) {
		return ext
	}
	return allowedAvatarTypes[contentType]
}
