package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-shop-api/internal/domain"
	jwtinfra "github.com/go-shop-api/internal/infrastructure/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockAccountStore struct{ mock.Mock }

func (m *mockAccountStore) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	args := m.Called(ctx, id)
	if a, _ := args.Get(0).(*domain.Account); a != nil {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockAccountStore) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	args := m.Called(ctx, email)
	if a, _ := args.Get(0).(*domain.Account); a != nil {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockVerifier struct{ mock.Mock }

func (m *mockVerifier) Verify(ctx context.Context, plain, hash string) (bool, error) {
	args := m.Called(ctx, plain, hash)
	return args.Bool(0), args.Error(1)
}

type memRevocations struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	err     error
}

func newMemRevocations() *memRevocations {
	return &memRevocations{revoked: map[string]time.Time{}}
}

func (m *memRevocations) Revoke(_ context.Context, id string, _ int64, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.revoked[id] = until
	return nil
}

func (m *memRevocations) IsRevoked(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	_, ok := m.revoked[id]
	return ok, nil
}

// --- helpers ---

func newProvider(t *testing.T) *jwtinfra.Provider {
	t.Helper()
	p, err := jwtinfra.NewProvider(jwtinfra.Options{
		Secret:     "test-secret",
		Issuer:     "go-shop-api",
		AccessTTL:  24 * time.Hour,
		RefreshTTL: 7 * 24 * time.Hour,
	})
	require.NoError(t, err)
	return p
}

func alice(active bool) *domain.Account {
	return &domain.Account{ID: 1, Username: "alice", Email: "a@x.com", PasswordHash: "hashed",
		Role: domain.RoleUser, IsActive: active}
}

type fixture struct {
	store    *mockAccountStore
	verifier *mockVerifier
	tokens   *jwtinfra.Provider
	revs     *memRevocations
	svc      Service
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		store:    new(mockAccountStore),
		verifier: new(mockVerifier),
		tokens:   newProvider(t),
		revs:     newMemRevocations(),
	}
	f.svc = NewService(ServiceDeps{
		Accounts:    f.store,
		Passwords:   f.verifier,
		Tokens:      f.tokens,
		Revocations: f.revs,
		TimingHash:  "timing-hash",
	})
	return f
}

// --- Authenticate ---

func TestAuthenticate_Success(t *testing.T) {
	f := newFixture(t)
	f.store.On("GetByEmail", mock.Anything, "a@x.com").Return(alice(true), nil)
	f.verifier.On("Verify", mock.Anything, "secret1", "hashed").Return(true, nil)

	res, err := f.svc.Authenticate(context.Background(), LoginRequest{Email: "a@x.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Empty(t, res.Account.PasswordHash)
	assert.NotEmpty(t, res.Tokens.AccessToken)
	assert.NotEmpty(t, res.Tokens.RefreshToken)
	assert.Equal(t, int64(86400), res.Tokens.ExpiresIn)

	claims, err := f.tokens.VerifyAccess(res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, int64(1), claims.UserID)
	assert.Equal(t, domain.RoleUser, claims.Role)
}

func TestAuthenticate_UnknownEmailAndWrongPasswordLookAlike(t *testing.T) {
	f := newFixture(t)
	f.store.On("GetByEmail", mock.Anything, "nobody@x.com").Return(nil, domain.ErrNotFound)
	f.store.On("GetByEmail", mock.Anything, "a@x.com").Return(alice(true), nil)
	f.verifier.On("Verify", mock.Anything, "secret1", "timing-hash").Return(false, nil).Once()
	f.verifier.On("Verify", mock.Anything, "wrong", "hashed").Return(false, nil).Once()

	_, errUnknown := f.svc.Authenticate(context.Background(), LoginRequest{Email: "nobody@x.com", Password: "secret1"})
	_, errWrong := f.svc.Authenticate(context.Background(), LoginRequest{Email: "a@x.com", Password: "wrong"})

	assert.ErrorIs(t, errUnknown, domain.ErrInvalidCredentials)
	assert.ErrorIs(t, errWrong, domain.ErrInvalidCredentials)
	assert.Equal(t, errUnknown.Error(), errWrong.Error())
	f.verifier.AssertExpectations(t)
}

func TestAuthenticate_NotActivated(t *testing.T) {
	f := newFixture(t)
	f.store.On("GetByEmail", mock.Anything, "a@x.com").Return(alice(false), nil)
	f.verifier.On("Verify", mock.Anything, "secret1", "hashed").Return(true, nil)

	_, err := f.svc.Authenticate(context.Background(), LoginRequest{Email: "a@x.com", Password: "secret1"})
	assert.ErrorIs(t, err, domain.ErrAccountNotActivated)
}

func TestAuthenticate_NotActivatedRequiresCorrectPassword(t *testing.T) {
	f := newFixture(t)
	f.store.On("GetByEmail", mock.Anything, "a@x.com").Return(alice(false), nil)
	f.verifier.On("Verify", mock.Anything, "wrong", "hashed").Return(false, nil)

	_, err := f.svc.Authenticate(context.Background(), LoginRequest{Email: "a@x.com", Password: "wrong"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestAuthenticate_Validation(t *testing.T) {
	_, err := newFixture(t).svc.Authenticate(context.Background(), LoginRequest{Email: "not-an-email", Password: "x"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

// --- Refresh ---

func TestRefresh_RotatesAndRevokesOldToken(t *testing.T) {
	f := newFixture(t)
	f.store.On("GetByID", mock.Anything, int64(1)).Return(alice(true), nil)

	first, err := f.tokens.IssuePair(alice(true))
	require.NoError(t, err)

	res, err := f.svc.Refresh(context.Background(), first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, res.Tokens.RefreshToken)
	assert.NotEqual(t, first.AccessToken, res.Tokens.AccessToken)

	_, err = f.svc.Refresh(context.Background(), first.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)

	_, err = f.svc.Refresh(context.Background(), res.Tokens.RefreshToken)
	assert.NoError(t, err)
}

func TestRefresh_RejectsAccessToken(t *testing.T) {
	f := newFixture(t)
	pair, err := f.tokens.IssuePair(alice(true))
	require.NoError(t, err)

	_, err = f.svc.Refresh(context.Background(), pair.AccessToken)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
	f.store.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestRefresh_EmptyOrGarbage(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Refresh(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
	_, err = f.svc.Refresh(context.Background(), "not.a.jwt")
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestRefresh_DeactivatedSinceIssuance(t *testing.T) {
	f := newFixture(t)
	f.store.On("GetByID", mock.Anything, int64(1)).Return(alice(false), nil)
	pair, err := f.tokens.IssuePair(alice(true))
	require.NoError(t, err)

	_, err = f.svc.Refresh(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrAccountNotActivated)
	assert.Empty(t, f.revs.revoked)
}

func TestRefresh_DeletedAccount(t *testing.T) {
	f := newFixture(t)
	f.store.On("GetByID", mock.Anything, int64(1)).Return(nil, domain.ErrNotFound)
	pair, err := f.tokens.IssuePair(alice(true))
	require.NoError(t, err)

	_, err = f.svc.Refresh(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestRefresh_StoreOutageFailsClosed(t *testing.T) {
	f := newFixture(t)
	f.revs.err = errors.New("redis down")
	pair, err := f.tokens.IssuePair(alice(true))
	require.NoError(t, err)

	_, err = f.svc.Refresh(context.Background(), pair.RefreshToken)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrInvalidToken)
}

func TestRefresh_WithoutRevocationStore(t *testing.T) {
	store := new(mockAccountStore)
	store.On("GetByID", mock.Anything, int64(1)).Return(alice(true), nil)
	tokens := newProvider(t)
	svc := NewService(ServiceDeps{Accounts: store, Passwords: new(mockVerifier), Tokens: tokens})

	pair, err := tokens.IssuePair(alice(true))
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	_, err = svc.Refresh(context.Background(), pair.RefreshToken)
	assert.NoError(t, err)
}

// --- Logout ---

func TestLogout_RevokesRefreshToken(t *testing.T) {
	f := newFixture(t)
	pair, err := f.tokens.IssuePair(alice(true))
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(context.Background(), pair.RefreshToken))

	_, err = f.svc.Refresh(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestLogout_NoTokenIsNoop(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.svc.Logout(context.Background(), ""))
	assert.NoError(t, f.svc.Logout(context.Background(), "garbage"))
	assert.Empty(t, f.revs.revoked)
}
