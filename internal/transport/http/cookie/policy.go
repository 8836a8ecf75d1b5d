// Package cookie maps access and refresh tokens onto path-scoped HTTP cookies.
package cookie

import (
	"net/http"
	"time"
)

const (
	AccessTokenName  = "access_token"
	RefreshTokenName = "refresh_token"
)

// Policy holds the attributes shared by both auth cookies. The refresh cookie
// is scoped to the refresh route so browsers only send it there.
type Policy struct {
	Secure      bool
	RefreshPath string
	RefreshTTL  time.Duration
}

// NewPolicy scopes the refresh cookie to apiPrefix + "/auth/refresh-token".
func NewPolicy(secure bool, apiPrefix string, refreshTTL time.Duration) Policy {
	return Policy{
		Secure:      secure,
		RefreshPath: apiPrefix + "/auth/refresh-token",
		RefreshTTL:  refreshTTL,
	}
}

// SetAuthCookies writes both auth cookies. expiresIn is the access token
// lifetime in seconds.
func (p Policy) SetAuthCookies(w http.ResponseWriter, accessToken, refreshToken string, expiresIn int64) {
	http.SetCookie(w, p.cookie(AccessTokenName, accessToken, "/", int(expiresIn)))
	http.SetCookie(w, p.cookie(RefreshTokenName, refreshToken, p.RefreshPath, int(p.RefreshTTL/time.Second)))
}

// ClearAllAuthCookies expires both cookies. Browsers only delete a cookie when
// name, path and attributes match the ones it was set with.
func (p Policy) ClearAllAuthCookies(w http.ResponseWriter) {
	http.SetCookie(w, p.expired(AccessTokenName, "/"))
	http.SetCookie(w, p.expired(RefreshTokenName, p.RefreshPath))
}

func (p Policy) cookie(name, value, path string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

func (p Policy) expired(name, path string) *http.Cookie {
	c := p.cookie(name, "", path, -1)
	c.Expires = time.Unix(0, 0)
	return c
}

// AccessToken returns the access token cookie value, if present.
func AccessToken(r *http.Request) (string, bool) { return read(r, AccessTokenName) }

// RefreshToken returns the refresh token cookie value, if present.
func RefreshToken(r *http.Request) (string, bool) { return read(r, RefreshTokenName) }

func read(r *http.Request, name string) (string, bool) {
	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}
