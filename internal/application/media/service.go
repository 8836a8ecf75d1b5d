package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/go-shop-api/internal/domain"
	"github.com/google/uuid"
)

// MaxImageSize caps avatar uploads.
const MaxImageSize = 5 << 20

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

type objectStore interface {
	Upload(ctx context.Context, key string, r io.Reader, contentType string) (domain.Image, error)
	Delete(ctx context.Context, contentID string) error
}

type Service interface {
	UploadAvatar(ctx context.Context, ownerID int64, r io.Reader) (domain.Image, error)
	Delete(ctx context.Context, contentID string) error
}

type service struct {
	store objectStore
}

func NewService(store objectStore) Service {
	return &service{store: store}
}

// UploadAvatar sniffs the content type from the bytes rather than trusting
// the client, and stores the image under a random key.
func (s *service) UploadAvatar(ctx context.Context, ownerID int64, r io.Reader) (domain.Image, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxImageSize+1))
	if err != nil {
		return domain.Image{}, fmt.Errorf("read image: %w", err)
	}
	if len(data) == 0 {
		return domain.Image{}, fmt.Errorf("image is empty: %w", domain.ErrValidation)
	}
	if len(data) > MaxImageSize {
		return domain.Image{}, fmt.Errorf("image exceeds %d bytes: %w", MaxImageSize, domain.ErrValidation)
	}
	contentType := http.DetectContentType(data)
	ext, ok := allowedTypes[contentType]
	if !ok {
		return domain.Image{}, fmt.Errorf("unsupported image type %q: %w", contentType, domain.ErrValidation)
	}
	key := fmt.Sprintf("avatars/%d/%s%s", ownerID, uuid.NewString(), ext)
	return s.store.Upload(ctx, key, bytes.NewReader(data), contentType)
}

func (s *service) Delete(ctx context.Context, contentID string) error {
	if contentID == "" {
		return nil
	}
	return s.store.Delete(ctx, contentID)
}
