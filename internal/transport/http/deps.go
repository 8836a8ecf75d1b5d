package http

import (
	"context"
	"io"
	"time"

	"github.com/go-shop-api/internal/application/session"
	"github.com/go-shop-api/internal/domain"
	jwtinfra "github.com/go-shop-api/internal/infrastructure/jwt"
	"github.com/go-shop-api/internal/infrastructure/smtp"
)

// AccountRepository is the minimal interface the router requires from an
// account store. *postgres.AccountRepo satisfies it.
type AccountRepository interface {
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	Create(ctx context.Context, n domain.NewAccount) (*domain.Account, error)
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	ActivateWithOTP(ctx context.Context, email, otp string, now time.Time) (*domain.Account, error)
	SetPendingOTP(ctx context.Context, email, otp string, expiresAt time.Time) (*domain.Account, error)
	UpdatePassword(ctx context.Context, id int64, hash string) error
	UpdateProfile(ctx context.Context, id int64, upd domain.ProfileUpdate) (*domain.Account, error)
	UpdateImage(ctx context.Context, id int64, img domain.Image) (*domain.Account, error)
	SoftDelete(ctx context.Context, id int64, now time.Time) error
	ListActive(ctx context.Context, limit, offset int) ([]domain.Account, int, error)
	ListByRole(ctx context.Context, role domain.Role, limit, offset int) ([]domain.Account, int, error)
	Search(ctx context.Context, term string, limit, offset int) ([]domain.Account, int, error)
}

// ObjectStore is the minimal interface the router requires from an object
// storage backend. *s3infra.Store satisfies it.
type ObjectStore interface {
	Upload(ctx context.Context, key string, r io.Reader, contentType string) (domain.Image, error)
	Delete(ctx context.Context, contentID string) error
}

// TokenProvider signs and verifies access and refresh tokens.
type TokenProvider interface {
	IssuePair(a *domain.Account) (*domain.TokenPair, error)
	VerifyAccess(token string) (*jwtinfra.Claims, error)
	VerifyRefresh(token string) (*jwtinfra.Claims, error)
	RefreshTTL() time.Duration
}

type PasswordHasher interface {
	Hash(ctx context.Context, plain string) (string, error)
	Verify(ctx context.Context, plain, hash string) (bool, error)
}

type OTPGenerator interface {
	Generate() (string, error)
}

// Pinger reports database reachability for the health endpoint.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	DB          Pinger
	Accounts    AccountRepository
	Hasher      PasswordHasher
	OTP         OTPGenerator
	Tokens      TokenProvider
	Revocations session.RevocationStore // nil disables refresh token revocation
	Objects     ObjectStore
	Mailer      smtp.Mailer
	TimingHash  string
	Now         func() time.Time
}
