package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-shop-api/internal/domain"
	jwtinfra "github.com/go-shop-api/internal/infrastructure/jwt"
	"github.com/go-shop-api/internal/pkg/validate"
)

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResult is returned by login and refresh. Account is always sanitized.
type AuthResult struct {
	Account *domain.Account   `json:"user"`
	Tokens  *domain.TokenPair `json:"tokens"`
}

type Service interface {
	Authenticate(ctx context.Context, req LoginRequest) (*AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*AuthResult, error)
	Logout(ctx context.Context, refreshToken string) error
}

type accountStore interface {
	GetByID(ctx context.Context, id int64) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
}

type passwordVerifier interface {
	Verify(ctx context.Context, plain, hash string) (bool, error)
}

type tokenIssuer interface {
	IssuePair(a *domain.Account) (*domain.TokenPair, error)
	VerifyRefresh(token string) (*jwtinfra.Claims, error)
}

// RevocationStore is a denylist of token ids. Entries only need to live
// until the token's own expiry.
type RevocationStore interface {
	Revoke(ctx context.Context, tokenID string, userID int64, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

type noopRevocations struct{}

func (noopRevocations) Revoke(context.Context, string, int64, time.Time) error { return nil }
func (noopRevocations) IsRevoked(context.Context, string) (bool, error)        { return false, nil }

type service struct {
	accounts    accountStore
	passwords   passwordVerifier
	tokens      tokenIssuer
	revocations RevocationStore
	timingHash  string
}

type ServiceDeps struct {
	Accounts  accountStore
	Passwords passwordVerifier
	Tokens    tokenIssuer
	// Revocations may be nil, in which case refresh tokens stay valid until
	// they expire.
	Revocations RevocationStore
	// TimingHash is verified against when the email is unknown so that both
	// failure paths spend the same hashing time.
	TimingHash string
}

func NewService(deps ServiceDeps) Service {
	rev := deps.Revocations
	if rev == nil {
		rev = noopRevocations{}
	}
	return &service{
		accounts:    deps.Accounts,
		passwords:   deps.Passwords,
		tokens:      deps.Tokens,
		revocations: rev,
		timingHash:  deps.TimingHash,
	}
}

func (s *service) Authenticate(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	if err := validate.Struct(&req); err != nil {
		return nil, err
	}
	acc, err := s.accounts.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			if s.timingHash != "" {
				_, _ = s.passwords.Verify(ctx, req.Password, s.timingHash)
			}
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	ok, err := s.passwords.Verify(ctx, req.Password, acc.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrInvalidCredentials
	}
	if !acc.IsActive {
		return nil, domain.ErrAccountNotActivated
	}
	return s.issue(acc)
}

// Refresh rotates a refresh token. The presented token is revoked before the
// new pair is minted, so a store outage fails the refresh rather than leaving
// two live tokens.
func (s *service) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if refreshToken == "" {
		return nil, domain.ErrInvalidToken
	}
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, err
	}
	revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		slog.Warn("revoked refresh token presented", "user_id", claims.UserID, "jti", claims.ID)
		return nil, domain.ErrInvalidToken
	}

	acc, err := s.accounts.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidToken
		}
		return nil, err
	}
	if !acc.IsActive {
		return nil, domain.ErrAccountNotActivated
	}

	if err := s.revoke(ctx, claims); err != nil {
		return nil, err
	}
	return s.issue(acc)
}

// Logout revokes the refresh token when one is presented. Missing or invalid
// tokens are not an error; the caller clears cookies regardless.
func (s *service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil
	}
	return s.revoke(ctx, claims)
}

func (s *service) revoke(ctx context.Context, claims *jwtinfra.Claims) error {
	var until time.Time
	if claims.ExpiresAt != nil {
		until = claims.ExpiresAt.Time
	}
	if err := s.revocations.Revoke(ctx, claims.ID, claims.UserID, until); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

func (s *service) issue(acc *domain.Account) (*AuthResult, error) {
	pair, err := s.tokens.IssuePair(acc)
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}
	return &AuthResult{Account: acc.Sanitized(), Tokens: pair}, nil
}
