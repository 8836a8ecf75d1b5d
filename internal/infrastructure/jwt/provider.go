package jwtinfra

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-shop-api/internal/domain"
	"github.com/go-shop-api/internal/pkg/id"
	"github.com/golang-jwt/jwt/v5"
)

// TokenType binds a token to the single purpose it was issued for.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

var (
	ErrTokenExpired   = fmt.Errorf("token expired: %w", domain.ErrInvalidToken)
	ErrTokenMalformed = fmt.Errorf("token malformed or signature invalid: %w", domain.ErrInvalidToken)
	ErrTokenType      = fmt.Errorf("unexpected token type: %w", domain.ErrInvalidToken)
)

// Claims holds the JWT payload fields.
type Claims struct {
	UserID   int64       `json:"userId"`
	Username string      `json:"username"`
	Email    string      `json:"email"`
	Role     domain.Role `json:"role"`
	Type     TokenType   `json:"typ"`
	jwt.RegisteredClaims
}

// Identity strips the registered claims.
func (c *Claims) Identity() domain.Identity {
	return domain.Identity{UserID: c.UserID, Username: c.Username, Email: c.Email, Role: c.Role}
}

// Options configures a Provider. Now defaults to time.Now.
type Options struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Now        func() time.Time
}

// Provider signs and verifies HS256 JWTs with one shared secret.
type Provider struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	parser     *jwt.Parser
}

func NewProvider(opts Options) (*Provider, error) {
	if opts.Secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	if opts.AccessTTL <= 0 || opts.RefreshTTL <= 0 {
		return nil, errors.New("jwt token lifetimes must be positive")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	p := &Provider{
		secret:     []byte(opts.Secret),
		issuer:     opts.Issuer,
		accessTTL:  opts.AccessTTL,
		refreshTTL: opts.RefreshTTL,
		now:        now,
	}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return p.now() }),
	}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}
	p.parser = jwt.NewParser(parserOpts...)
	return p, nil
}

// AccessTTL is the access token lifetime; cookie Max-Age and expiresIn derive from it.
func (p *Provider) AccessTTL() time.Duration { return p.accessTTL }

// RefreshTTL is the refresh token lifetime.
func (p *Provider) RefreshTTL() time.Duration { return p.refreshTTL }

func (p *Provider) IssueAccessToken(ident domain.Identity) (string, error) {
	return p.sign(ident, TokenAccess, p.accessTTL)
}

func (p *Provider) IssueRefreshToken(ident domain.Identity) (string, error) {
	return p.sign(ident, TokenRefresh, p.refreshTTL)
}

// IssuePair signs a fresh access and refresh token for the account.
func (p *Provider) IssuePair(a *domain.Account) (*domain.TokenPair, error) {
	ident := a.Identity()
	access, err := p.IssueAccessToken(ident)
	if err != nil {
		return nil, err
	}
	refresh, err := p.IssueRefreshToken(ident)
	if err != nil {
		return nil, err
	}
	return &domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(p.accessTTL / time.Second),
	}, nil
}

func (p *Provider) sign(ident domain.Identity, typ TokenType, ttl time.Duration) (string, error) {
	now := p.now()
	claims := Claims{
		UserID:   ident.UserID,
		Username: ident.Username,
		Email:    ident.Email,
		Role:     ident.Role,
		Type:     typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id.New(),
			Issuer:    p.issuer,
			Subject:   fmt.Sprintf("%d", ident.UserID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, nil
}

func (p *Provider) VerifyAccess(tokenStr string) (*Claims, error) {
	return p.verify(tokenStr, TokenAccess)
}

func (p *Provider) VerifyRefresh(tokenStr string) (*Claims, error) {
	return p.verify(tokenStr, TokenRefresh)
}

func (p *Provider) verify(tokenStr string, want TokenType) (*Claims, error) {
	claims, err := p.parse(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.Type != want {
		return nil, ErrTokenType
	}
	return claims, nil
}

func (p *Provider) parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := p.parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return p.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return claims, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}
	if !token.Valid {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// Introspection is the non-failing view of a token used for diagnostics.
type Introspection struct {
	IsValid   bool    `json:"isValid"`
	IsExpired bool    `json:"isExpired"`
	Claims    *Claims `json:"claims,omitempty"`
}

// Introspect never returns an error. Claims are reported for valid tokens and
// for correctly signed tokens that have only expired.
func (p *Provider) Introspect(tokenStr string) Introspection {
	claims, err := p.parse(tokenStr)
	switch {
	case err == nil:
		return Introspection{IsValid: true, Claims: claims}
	case errors.Is(err, ErrTokenExpired):
		return Introspection{IsExpired: true, Claims: claims}
	default:
		return Introspection{}
	}
}

// ExtractBearerToken parses an Authorization header value. Absence or a
// non-Bearer scheme yields ok=false, never an error.
func ExtractBearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}
