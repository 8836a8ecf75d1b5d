package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-shop-api/internal/config"
	"github.com/go-shop-api/internal/domain"
	jwtinfra "github.com/go-shop-api/internal/infrastructure/jwt"
	redisinfra "github.com/go-shop-api/internal/infrastructure/redis"
	"github.com/go-shop-api/internal/pkg/otp"
	"github.com/go-shop-api/internal/pkg/password"
	"github.com/go-shop-api/internal/transport/http/cookie"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- in-memory collaborators ---

type memAccounts struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*domain.Account
}

func newMemAccounts() *memAccounts {
	return &memAccounts{rows: map[int64]*domain.Account{}}
}

func (m *memAccounts) clone(a *domain.Account) *domain.Account {
	c := *a
	return &c
}

func (m *memAccounts) conflict(id int64, username, email string) bool {
	for _, a := range m.rows {
		if a.ID != id && (a.Username == username || a.Email == email) {
			return true
		}
	}
	return false
}

func (m *memAccounts) ExistsByUsernameOrEmail(_ context.Context, username, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conflict(0, username, email), nil
}

func (m *memAccounts) Create(_ context.Context, n domain.NewAccount) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflict(0, n.Username, n.Email) {
		return nil, domain.ErrDuplicate
	}
	m.nextID++
	now := time.Now().UTC()
	a := &domain.Account{
		ID: m.nextID, Username: n.Username, Email: n.Email, PasswordHash: n.PasswordHash,
		Image: n.Image, IsActive: n.IsActive, OTP: n.OTP, OTPExpiresAt: n.OTPExpiresAt,
		Role: n.Role, CreatedAt: now, UpdatedAt: now,
	}
	m.rows[a.ID] = a
	return m.clone(a), nil
}

func (m *memAccounts) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

func (m *memAccounts) GetByID(_ context.Context, id int64) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return m.clone(a), nil
}

func (m *memAccounts) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.rows {
		if a.Email == email {
			return m.clone(a), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memAccounts) ActivateWithOTP(_ context.Context, email, code string, now time.Time) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.rows {
		if a.Email == email && a.PendingVerification() && a.OTP != nil && *a.OTP == code &&
			a.OTPExpiresAt != nil && a.OTPExpiresAt.After(now) {
			a.IsActive, a.OTP, a.OTPExpiresAt = true, nil, nil
			return m.clone(a), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memAccounts) SetPendingOTP(_ context.Context, email, code string, expiresAt time.Time) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.rows {
		if a.Email == email && a.PendingVerification() {
			a.OTP, a.OTPExpiresAt = &code, &expiresAt
			return m.clone(a), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memAccounts) UpdatePassword(_ context.Context, id int64, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.PasswordHash = hash
	return nil
}

func (m *memAccounts) UpdateProfile(_ context.Context, id int64, upd domain.ProfileUpdate) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	username, email := a.Username, a.Email
	if upd.Username != nil {
		username = *upd.Username
	}
	if upd.Email != nil {
		email = *upd.Email
	}
	if m.conflict(id, username, email) {
		return nil, domain.ErrDuplicate
	}
	a.Username, a.Email = username, email
	if upd.Image != nil {
		a.Image = upd.Image
	}
	return m.clone(a), nil
}

func (m *memAccounts) UpdateImage(_ context.Context, id int64, img domain.Image) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	a.Image, a.ImageID = &img.URL, &img.ContentID
	return m.clone(a), nil
}

func (m *memAccounts) SoftDelete(_ context.Context, id int64, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.IsActive = false
	if a.DeletedAt == nil {
		a.DeletedAt = &now
	}
	return nil
}

func (m *memAccounts) filter(keep func(*domain.Account) bool, limit, offset int) ([]domain.Account, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []domain.Account
	for id := int64(1); id <= m.nextID; id++ {
		if a, ok := m.rows[id]; ok && keep(a) {
			all = append(all, *a)
		}
	}
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+limit, total)
	return all[offset:end], total, nil
}

func (m *memAccounts) ListActive(_ context.Context, limit, offset int) ([]domain.Account, int, error) {
	return m.filter(func(a *domain.Account) bool { return a.IsActive }, limit, offset)
}

func (m *memAccounts) ListByRole(_ context.Context, role domain.Role, limit, offset int) ([]domain.Account, int, error) {
	return m.filter(func(a *domain.Account) bool { return a.Role == role && a.DeletedAt == nil }, limit, offset)
}

func (m *memAccounts) Search(_ context.Context, term string, limit, offset int) ([]domain.Account, int, error) {
	term = strings.ToLower(term)
	return m.filter(func(a *domain.Account) bool {
		return strings.Contains(strings.ToLower(a.Username), term) || strings.Contains(strings.ToLower(a.Email), term)
	}, limit, offset)
}

var otpPattern = regexp.MustCompile(`>(\d{6})</h2>`)

type captureMailer struct {
	mu   sync.Mutex
	last map[string]string
	fail bool
}

func (c *captureMailer) SendEmail(to, _, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return io.ErrUnexpectedEOF
	}
	if m := otpPattern.FindStringSubmatch(body); m != nil {
		c.last[to] = m[1]
	}
	return nil
}

func (c *captureMailer) code(to string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last[to]
}

type nopObjects struct{}

func (nopObjects) Upload(_ context.Context, key string, _ io.Reader, _ string) (domain.Image, error) {
	return domain.Image{URL: "https://cdn.example/" + key, ContentID: key}, nil
}
func (nopObjects) Delete(context.Context, string) error { return nil }

type okPinger struct{}

func (okPinger) PingContext(context.Context) error { return nil }

// --- harness ---

type testServer struct {
	*httptest.Server
	accounts *memAccounts
	mailer   *captureMailer
	hasher   *password.Hasher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &config.Config{
		AppName:        "Go Shop",
		AppEnv:         "test",
		APIPrefix:      "/api/v1",
		OTPTTL:         10 * time.Minute,
		AllowedOrigins: []string{"http://localhost:5173"},
	}
	tokens, err := jwtinfra.NewProvider(jwtinfra.Options{
		Secret:     "router-secret",
		Issuer:     "go-shop-api",
		AccessTTL:  24 * time.Hour,
		RefreshTTL: 7 * 24 * time.Hour,
	})
	require.NoError(t, err)

	ts := &testServer{
		accounts: newMemAccounts(),
		mailer:   &captureMailer{last: map[string]string{}},
		hasher:   password.NewHasher(bcrypt.MinCost, 4),
	}
	timing, err := ts.hasher.Hash(ctx, "timing-equalizer")
	require.NoError(t, err)

	ts.Server = httptest.NewServer(NewRouter(ctx, cfg, &Deps{
		DB:          okPinger{},
		Accounts:    ts.accounts,
		Hasher:      ts.hasher,
		OTP:         otp.NewGenerator(6),
		Tokens:      tokens,
		Revocations: redisinfra.NewRevocationStore(rdb),
		Objects:     nopObjects{},
		Mailer:      ts.mailer,
		TimingHash:  timing,
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}, headers map[string]string, cookies ...*http.Cookie) (*http.Response, map[string]interface{}) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.URL+"/api/v1"+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func bearer(tok string) map[string]string { return map[string]string{"Authorization": "Bearer " + tok} }

func tokensOf(t *testing.T, body map[string]interface{}) (access, refresh string) {
	t.Helper()
	tokens, ok := body["tokens"].(map[string]interface{})
	require.True(t, ok, "response has no tokens: %v", body)
	return tokens["accessToken"].(string), tokens["refreshToken"].(string)
}

func (ts *testServer) registerAndVerify(t *testing.T, username, email, pw string) {
	t.Helper()
	resp, _ := ts.do(t, http.MethodPost, "/auth/register", map[string]string{
		"username": username, "email": email, "password": pw, "confirmPassword": pw,
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = ts.do(t, http.MethodPost, "/auth/verify-otp", map[string]string{
		"email": email, "otp": ts.mailer.code(email),
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

// --- scenarios ---

func TestRouter_RegisterVerifyLoginRefresh(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodPost, "/auth/register", map[string]string{
		"username": "alice", "email": "a@x.com", "password": "secret1", "confirmPassword": "secret1",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	user := body["user"].(map[string]interface{})
	assert.Equal(t, false, user["isActive"])
	assert.Equal(t, string(domain.RoleUser), user["role"])
	assert.NotContains(t, user, "otp")

	code := ts.mailer.code("a@x.com")
	require.Len(t, code, 6)

	resp, _ = ts.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "a@x.com", "password": "secret1"}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "login before verification")

	resp, body = ts.do(t, http.MethodPost, "/auth/verify-otp", map[string]string{"email": "a@x.com", "otp": code}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["user"].(map[string]interface{})["isActive"])

	resp, _ = ts.do(t, http.MethodPost, "/auth/verify-otp", map[string]string{"email": "a@x.com", "otp": code}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "otp is single use")

	resp, body = ts.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "a@x.com", "password": "secret1"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	access, refresh := tokensOf(t, body)
	assert.NotEmpty(t, access)
	assert.NotEmpty(t, refresh)
	assert.EqualValues(t, 86400, body["tokens"].(map[string]interface{})["expiresIn"])

	names := map[string]*http.Cookie{}
	for _, c := range resp.Cookies() {
		names[c.Name] = c
	}
	require.Contains(t, names, cookie.AccessTokenName)
	require.Contains(t, names, cookie.RefreshTokenName)
	assert.Equal(t, "/api/v1/auth/refresh-token", names[cookie.RefreshTokenName].Path)

	resp, body = ts.do(t, http.MethodPost, "/auth/refresh-token", map[string]string{"refreshToken": refresh}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	access2, refresh2 := tokensOf(t, body)
	assert.NotEqual(t, access, access2)
	assert.NotEqual(t, refresh, refresh2)

	resp, _ = ts.do(t, http.MethodPost, "/auth/refresh-token", map[string]string{"refreshToken": refresh}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "rotated refresh token is revoked")

	resp, body = ts.do(t, http.MethodGet, "/users/profile", nil, bearer(access2))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alice", body["user"].(map[string]interface{})["username"])
}

func TestRouter_WrongPasswordMatchesUnknownEmail(t *testing.T) {
	ts := newTestServer(t)
	ts.registerAndVerify(t, "alice", "a@x.com", "secret1")

	respWrong, bodyWrong := ts.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "a@x.com", "password": "nope12"}, nil)
	respUnknown, bodyUnknown := ts.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "z@x.com", "password": "nope12"}, nil)

	assert.Equal(t, http.StatusBadRequest, respWrong.StatusCode)
	assert.Equal(t, respWrong.StatusCode, respUnknown.StatusCode)
	assert.Equal(t, bodyWrong, bodyUnknown)
}

func TestRouter_DuplicateRegistration(t *testing.T) {
	ts := newTestServer(t)
	ts.registerAndVerify(t, "alice", "a@x.com", "secret1")

	resp, body := ts.do(t, http.MethodPost, "/auth/register", map[string]string{
		"username": "alice2", "email": "a@x.com", "password": "secret1", "confirmPassword": "secret1",
	}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, domain.ErrDuplicate.Error(), body["error"])
}

func TestRouter_EmailFailureLeavesNoAccount(t *testing.T) {
	ts := newTestServer(t)
	ts.mailer.fail = true

	resp, _ := ts.do(t, http.MethodPost, "/auth/register", map[string]string{
		"username": "alice", "email": "a@x.com", "password": "secret1", "confirmPassword": "secret1",
	}, nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	exists, err := ts.accounts.ExistsByUsernameOrEmail(context.Background(), "alice", "a@x.com")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRouter_LogoutClearsCookiesAndRevokes(t *testing.T) {
	ts := newTestServer(t)
	ts.registerAndVerify(t, "alice", "a@x.com", "secret1")
	_, body := ts.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "a@x.com", "password": "secret1"}, nil)
	_, refresh := tokensOf(t, body)

	resp, _ := ts.do(t, http.MethodPost, "/auth/logout", map[string]string{"refreshToken": refresh}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	for _, c := range resp.Cookies() {
		assert.Equal(t, -1, c.MaxAge, c.Name)
	}
	assert.Len(t, resp.Cookies(), 2)

	resp, _ = ts.do(t, http.MethodPost, "/auth/refresh-token", map[string]string{"refreshToken": refresh}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, "/auth/logout", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "logout without a session still succeeds")
}

func TestRouter_ChangePassword(t *testing.T) {
	ts := newTestServer(t)
	ts.registerAndVerify(t, "alice", "a@x.com", "secret1")
	_, body := ts.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "a@x.com", "password": "secret1"}, nil)
	access, _ := tokensOf(t, body)

	resp, _ := ts.do(t, http.MethodPut, "/users/change-password",
		map[string]string{"currentPassword": "wrong1", "newPassword": "secret2"}, bearer(access))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPut, "/users/change-password",
		map[string]string{"currentPassword": "secret1", "newPassword": "secret2"}, bearer(access))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "a@x.com", "password": "secret2"}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_RoleGates(t *testing.T) {
	ts := newTestServer(t)
	ts.registerAndVerify(t, "alice", "a@x.com", "secret1")

	hash, err := ts.hasher.Hash(context.Background(), "secret1")
	require.NoError(t, err)
	_, err = ts.accounts.Create(context.Background(), domain.NewAccount{
		Username: "boss", Email: "boss@x.com", PasswordHash: hash, Role: domain.RoleAdmin, IsActive: true,
	})
	require.NoError(t, err)

	_, body := ts.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "a@x.com", "password": "secret1"}, nil)
	userTok, _ := tokensOf(t, body)
	_, body = ts.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "boss@x.com", "password": "secret1"}, nil)
	adminTok, _ := tokensOf(t, body)

	resp, _ := ts.do(t, http.MethodGet, "/users", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodGet, "/users", nil, bearer(userTok))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = ts.do(t, http.MethodGet, "/users", nil, bearer(adminTok))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, body["total"])

	resp, body = ts.do(t, http.MethodGet, "/users/search?search=ali", nil, bearer(adminTok))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["total"])

	resp, _ = ts.do(t, http.MethodPatch, "/users/1/soft-delete", nil, bearer(adminTok))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodGet, "/users/profile", nil, bearer(userTok))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "deactivated profile")

	resp, _ = ts.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "a@x.com", "password": "secret1"}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, "/auth/resend-otp", map[string]string{"email": "a@x.com"}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "deactivation is terminal")
}

func TestRouter_HealthAndRoles(t *testing.T) {
	ts := newTestServer(t)
	resp, body := ts.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	ts.registerAndVerify(t, "alice", "a@x.com", "secret1")
	_, body = ts.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "a@x.com", "password": "secret1"}, nil)
	access, _ := tokensOf(t, body)

	resp, body = ts.do(t, http.MethodGet, "/roles", nil, bearer(access))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["roles"], len(domain.Roles))
}
