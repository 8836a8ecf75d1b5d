package domain

import "time"

// Account is the persisted user record. Credential and verification fields
// never leave the process in JSON form.
type Account struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Image        *string    `json:"image"`
	ImageID      *string    `json:"-"`
	IsActive     bool       `json:"isActive"`
	OTP          *string    `json:"-"`
	OTPExpiresAt *time.Time `json:"-"`
	Role         Role       `json:"role"`
	DeletedAt    *time.Time `json:"deactivatedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Sanitized returns a copy with the hash and any pending OTP removed.
func (a *Account) Sanitized() *Account {
	if a == nil {
		return nil
	}
	c := *a
	c.PasswordHash = ""
	c.OTP = nil
	c.OTPExpiresAt = nil
	c.ImageID = nil
	return &c
}

// Identity returns the claim set carried by tokens issued for the account.
func (a *Account) Identity() Identity {
	return Identity{UserID: a.ID, Username: a.Username, Email: a.Email, Role: a.Role}
}

// PendingVerification reports whether the account is waiting for OTP activation.
func (a *Account) PendingVerification() bool {
	return !a.IsActive && a.DeletedAt == nil
}

// Identity is the authenticated principal attached to a request.
type Identity struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
}

// TokenPair is returned on login and refresh. It is never persisted.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// NewAccount carries the fields needed to insert an account row.
type NewAccount struct {
	Username     string
	Email        string
	PasswordHash string
	Image        *string
	Role         Role
	IsActive     bool
	OTP          *string
	OTPExpiresAt *time.Time
}

// ProfileUpdate lists the self-service profile fields. Nil means unchanged.
type ProfileUpdate struct {
	Username *string `json:"username" validate:"omitempty,username"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Image    *string `json:"image" validate:"omitempty,url"`
}

// Image is a stored object reference returned by the media store.
type Image struct {
	URL       string `json:"url"`
	ContentID string `json:"contentId"`
}
