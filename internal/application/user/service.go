package user

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-shop-api/internal/domain"
	"github.com/go-shop-api/internal/pkg/validate"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6,max=72,bcryptlen"`
}

// Page is an offset window. Zero values select the first default-sized page.
type Page struct {
	Limit  int `validate:"gte=0,lte=100"`
	Offset int `validate:"gte=0"`
}

func (p Page) normalized() Page {
	if p.Limit == 0 {
		p.Limit = defaultPageSize
	}
	if p.Limit > maxPageSize {
		p.Limit = maxPageSize
	}
	return p
}

type PageResult struct {
	Items  []domain.Account `json:"items"`
	Total  int              `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

type searchQuery struct {
	Term string `validate:"required,min=2,max=100"`
}

type Service interface {
	GetProfile(ctx context.Context, id int64) (*domain.Account, error)
	UpdateProfile(ctx context.Context, id int64, upd domain.ProfileUpdate) (*domain.Account, error)
	UpdateAvatar(ctx context.Context, id int64, r io.Reader) (*domain.Account, error)
	ChangePassword(ctx context.Context, id int64, req ChangePasswordRequest) error

	List(ctx context.Context, page Page) (*PageResult, error)
	Get(ctx context.Context, id int64) (*domain.Account, error)
	ListByRole(ctx context.Context, role domain.Role, page Page) (*PageResult, error)
	Search(ctx context.Context, term string, page Page) (*PageResult, error)
	SoftDelete(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
}

type accountStore interface {
	GetByID(ctx context.Context, id int64) (*domain.Account, error)
	UpdatePassword(ctx context.Context, id int64, hash string) error
	UpdateProfile(ctx context.Context, id int64, upd domain.ProfileUpdate) (*domain.Account, error)
	UpdateImage(ctx context.Context, id int64, img domain.Image) (*domain.Account, error)
	SoftDelete(ctx context.Context, id int64, now time.Time) error
	Delete(ctx context.Context, id int64) error
	ListActive(ctx context.Context, limit, offset int) ([]domain.Account, int, error)
	ListByRole(ctx context.Context, role domain.Role, limit, offset int) ([]domain.Account, int, error)
	Search(ctx context.Context, term string, limit, offset int) ([]domain.Account, int, error)
}

type passwordHasher interface {
	Hash(ctx context.Context, plain string) (string, error)
	Verify(ctx context.Context, plain, hash string) (bool, error)
}

type avatarStore interface {
	UploadAvatar(ctx context.Context, ownerID int64, r io.Reader) (domain.Image, error)
	Delete(ctx context.Context, contentID string) error
}

type service struct {
	accounts accountStore
	hasher   passwordHasher
	media    avatarStore
	now      func() time.Time
}

type ServiceDeps struct {
	Accounts accountStore
	Hasher   passwordHasher
	Media    avatarStore
	Now      func() time.Time
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &service{accounts: deps.Accounts, hasher: deps.Hasher, media: deps.Media, now: now}
}

// activeAccount loads the account and rejects deactivated ones.
func (s *service) activeAccount(ctx context.Context, id int64) (*domain.Account, error) {
	acc, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !acc.IsActive {
		return nil, domain.ErrAccountDeactivated
	}
	return acc, nil
}

func (s *service) GetProfile(ctx context.Context, id int64) (*domain.Account, error) {
	acc, err := s.activeAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	return acc.Sanitized(), nil
}

func (s *service) UpdateProfile(ctx context.Context, id int64, upd domain.ProfileUpdate) (*domain.Account, error) {
	if err := validate.Struct(&upd); err != nil {
		return nil, err
	}
	if _, err := s.activeAccount(ctx, id); err != nil {
		return nil, err
	}
	acc, err := s.accounts.UpdateProfile(ctx, id, upd)
	if err != nil {
		return nil, err
	}
	return acc.Sanitized(), nil
}

// UpdateAvatar stores the new image and then removes the previous one. A
// failed cleanup only leaves an orphaned object behind.
func (s *service) UpdateAvatar(ctx context.Context, id int64, r io.Reader) (*domain.Account, error) {
	prev, err := s.activeAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	img, err := s.media.UploadAvatar(ctx, id, r)
	if err != nil {
		return nil, err
	}
	acc, err := s.accounts.UpdateImage(ctx, id, img)
	if err != nil {
		if delErr := s.media.Delete(ctx, img.ContentID); delErr != nil {
			slog.Warn("failed to remove uploaded avatar", "account_id", id, "content_id", img.ContentID, "err", delErr)
		}
		return nil, err
	}
	if prev.ImageID != nil && *prev.ImageID != img.ContentID {
		if err := s.media.Delete(ctx, *prev.ImageID); err != nil {
			slog.Warn("failed to remove previous avatar", "account_id", id, "content_id", *prev.ImageID, "err", err)
		}
	}
	return acc.Sanitized(), nil
}

func (s *service) ChangePassword(ctx context.Context, id int64, req ChangePasswordRequest) error {
	if err := validate.Struct(&req); err != nil {
		return err
	}
	acc, err := s.activeAccount(ctx, id)
	if err != nil {
		return err
	}
	ok, err := s.hasher.Verify(ctx, req.CurrentPassword, acc.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrInvalidCredentials
	}
	hash, err := s.hasher.Hash(ctx, req.NewPassword)
	if err != nil {
		return err
	}
	return s.accounts.UpdatePassword(ctx, id, hash)
}

func (s *service) List(ctx context.Context, page Page) (*PageResult, error) {
	return s.page(page, func(p Page) ([]domain.Account, int, error) {
		return s.accounts.ListActive(ctx, p.Limit, p.Offset)
	})
}

func (s *service) Get(ctx context.Context, id int64) (*domain.Account, error) {
	acc, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return acc.Sanitized(), nil
}

func (s *service) ListByRole(ctx context.Context, role domain.Role, page Page) (*PageResult, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role %q: %w", role, domain.ErrValidation)
	}
	return s.page(page, func(p Page) ([]domain.Account, int, error) {
		return s.accounts.ListByRole(ctx, role, p.Limit, p.Offset)
	})
}

func (s *service) Search(ctx context.Context, term string, page Page) (*PageResult, error) {
	if err := validate.Struct(&searchQuery{Term: term}); err != nil {
		return nil, err
	}
	return s.page(page, func(p Page) ([]domain.Account, int, error) {
		return s.accounts.Search(ctx, term, p.Limit, p.Offset)
	})
}

func (s *service) SoftDelete(ctx context.Context, id int64) error {
	return s.accounts.SoftDelete(ctx, id, s.now().UTC())
}

// Delete removes the row and its stored avatar. Deleting an unknown id
// reports ErrNotFound.
func (s *service) Delete(ctx context.Context, id int64) error {
	acc, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.accounts.Delete(ctx, id); err != nil {
		return err
	}
	if acc.ImageID != nil {
		if err := s.media.Delete(ctx, *acc.ImageID); err != nil {
			slog.Warn("failed to remove avatar of deleted account", "account_id", id, "err", err)
		}
	}
	return nil
}

func (s *service) page(page Page, fetch func(Page) ([]domain.Account, int, error)) (*PageResult, error) {
	if err := validate.Struct(&page); err != nil {
		return nil, err
	}
	page = page.normalized()
	items, total, err := fetch(page)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Account, 0, len(items))
	for i := range items {
		out = append(out, *items[i].Sanitized())
	}
	return &PageResult{Items: out, Total: total, Limit: page.Limit, Offset: page.Offset}, nil
}
