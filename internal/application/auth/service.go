package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-shop-api/internal/domain"
	"github.com/go-shop-api/internal/pkg/validate"
)

type RegisterRequest struct {
	Username        string  `json:"username" validate:"required,username"`
	Email           string  `json:"email" validate:"required,email,max=255"`
	Password        string  `json:"password" validate:"required,min=6,max=72,bcryptlen"`
	ConfirmPassword string  `json:"confirmPassword" validate:"required,eqfield=Password"`
	Image           *string `json:"image" validate:"omitempty,url"`
}

// CreateAccountRequest is used for privileged account creation where the
// role is chosen by an operator. Only pre-activated roles are accepted.
type CreateAccountRequest struct {
	Username string      `validate:"required,username"`
	Email    string      `validate:"required,email,max=255"`
	Password string      `validate:"required,min=6,max=72,bcryptlen"`
	Role     domain.Role `validate:"required"`
}

type VerifyOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,numeric"`
}

type ResendOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// PendingAccount is the internal result of register and resend. OTP must
// never be written to a client response.
type PendingAccount struct {
	Account *domain.Account
	OTP     string
}

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*PendingAccount, error)
	CreateAccount(ctx context.Context, req CreateAccountRequest) (*domain.Account, error)
	VerifyOTP(ctx context.Context, req VerifyOTPRequest) (*domain.Account, error)
	ResendOTP(ctx context.Context, req ResendOTPRequest) (*PendingAccount, error)
}

type accountStore interface {
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	Create(ctx context.Context, n domain.NewAccount) (*domain.Account, error)
	Delete(ctx context.Context, id int64) error
	ActivateWithOTP(ctx context.Context, email, otp string, now time.Time) (*domain.Account, error)
	SetPendingOTP(ctx context.Context, email, otp string, expiresAt time.Time) (*domain.Account, error)
}

type passwordHasher interface {
	Hash(ctx context.Context, plain string) (string, error)
}

type otpGenerator interface {
	Generate() (string, error)
}

type otpSender interface {
	SendOTP(ctx context.Context, to, username, code string, ttl time.Duration) error
}

type service struct {
	accounts accountStore
	hasher   passwordHasher
	otp      otpGenerator
	notifier otpSender
	otpTTL   time.Duration
	now      func() time.Time
}

type ServiceDeps struct {
	Accounts accountStore
	Hasher   passwordHasher
	OTP      otpGenerator
	Notifier otpSender
	OTPTTL   time.Duration
	Now      func() time.Time
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		accounts: deps.Accounts,
		hasher:   deps.Hasher,
		otp:      deps.OTP,
		notifier: deps.Notifier,
		otpTTL:   deps.OTPTTL,
		now:      now,
	}
}

// Register creates a pending ROLE_USER account and emails its OTP. When the
// email cannot be sent the new row is deleted again and ErrNotification is
// returned.
func (s *service) Register(ctx context.Context, req RegisterRequest) (*PendingAccount, error) {
	if err := validate.Struct(&req); err != nil {
		return nil, err
	}
	if err := s.ensureAvailable(ctx, req.Username, req.Email); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(ctx, req.Password)
	if err != nil {
		return nil, err
	}
	code, err := s.otp.Generate()
	if err != nil {
		return nil, err
	}
	expires := s.now().UTC().Add(s.otpTTL)

	acc, err := s.accounts.Create(ctx, domain.NewAccount{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Image:        req.Image,
		Role:         domain.RoleUser,
		IsActive:     false,
		OTP:          &code,
		OTPExpiresAt: &expires,
	})
	if err != nil {
		return nil, err
	}

	if err := s.notifier.SendOTP(ctx, acc.Email, acc.Username, code, s.otpTTL); err != nil {
		s.rollbackCreate(ctx, acc.ID)
		if errors.Is(err, domain.ErrNotification) {
			return nil, err
		}
		return nil, fmt.Errorf("send verification email: %v: %w", err, domain.ErrNotification)
	}
	return &PendingAccount{Account: acc, OTP: code}, nil
}

// rollbackCreate is the compensating delete for Register. Delete is
// idempotent, and it runs detached from request cancellation.
func (s *service) rollbackCreate(ctx context.Context, id int64) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.accounts.Delete(ctx, id); err != nil {
		slog.Error("failed to delete account after verification email failure", "account_id", id, "err", err)
		return
	}
	slog.Warn("deleted account after verification email failure", "account_id", id)
}

// CreateAccount creates an active staff, admin or super-admin account without
// OTP verification. Self-service roles must register instead.
func (s *service) CreateAccount(ctx context.Context, req CreateAccountRequest) (*domain.Account, error) {
	if err := validate.Struct(&req); err != nil {
		return nil, err
	}
	if !req.Role.Valid() {
		return nil, fmt.Errorf("unknown role %q: %w", req.Role, domain.ErrValidation)
	}
	if !req.Role.PreActivated() {
		return nil, fmt.Errorf("role %q must register and verify by email: %w", req.Role, domain.ErrValidation)
	}
	if err := s.ensureAvailable(ctx, req.Username, req.Email); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(ctx, req.Password)
	if err != nil {
		return nil, err
	}
	acc, err := s.accounts.Create(ctx, domain.NewAccount{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         req.Role,
		IsActive:     true,
	})
	if err != nil {
		return nil, err
	}
	return acc.Sanitized(), nil
}

// ensureAvailable is an early exit only; the unique constraints in the store
// decide races between concurrent registrations.
func (s *service) ensureAvailable(ctx context.Context, username, email string) error {
	exists, err := s.accounts.ExistsByUsernameOrEmail(ctx, username, email)
	if err != nil {
		return err
	}
	if exists {
		return domain.ErrDuplicate
	}
	return nil
}

// VerifyOTP activates the pending account matching email and code. Wrong and
// expired codes produce the same error.
func (s *service) VerifyOTP(ctx context.Context, req VerifyOTPRequest) (*domain.Account, error) {
	if err := validate.Struct(&req); err != nil {
		return nil, err
	}
	acc, err := s.accounts.ActivateWithOTP(ctx, req.Email, req.OTP, s.now().UTC())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidOTP
		}
		return nil, err
	}
	return acc.Sanitized(), nil
}

// ResendOTP issues a fresh code for an account still awaiting verification.
// Unknown and already verified emails both yield ErrNotFound.
func (s *service) ResendOTP(ctx context.Context, req ResendOTPRequest) (*PendingAccount, error) {
	if err := validate.Struct(&req); err != nil {
		return nil, err
	}
	code, err := s.otp.Generate()
	if err != nil {
		return nil, err
	}
	acc, err := s.accounts.SetPendingOTP(ctx, req.Email, code, s.now().UTC().Add(s.otpTTL))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("no account awaiting verification for this email: %w", domain.ErrNotFound)
		}
		return nil, err
	}
	if err := s.notifier.SendOTP(ctx, acc.Email, acc.Username, code, s.otpTTL); err != nil {
		if errors.Is(err, domain.ErrNotification) {
			return nil, err
		}
		return nil, fmt.Errorf("send verification email: %v: %w", err, domain.ErrNotification)
	}
	return &PendingAccount{Account: acc, OTP: code}, nil
}
