package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrValidation          = errors.New("validation failed")
	ErrDuplicate           = errors.New("username or email already exists")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrInvalidOTP          = errors.New("invalid or expired OTP")
	ErrInvalidToken        = errors.New("invalid or expired token")
	ErrAccountNotActivated = errors.New("account is not activated")
	ErrAccountDeactivated  = errors.New("account is deactivated")
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrUnauthenticated     = errors.New("authentication required")
	ErrNotification        = errors.New("notification delivery failed")
	ErrInternal            = errors.New("internal error")
)
