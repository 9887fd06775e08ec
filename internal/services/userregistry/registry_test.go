package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/licensing-reconciler/internal/errs"
	"github.com/magabrotheeeer/licensing-reconciler/internal/identity"
	"github.com/magabrotheeeer/licensing-reconciler/internal/models"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) CreateUser(ctx context.Context, user models.User) (string, error) {
	args := m.Called(ctx, user)
	return args.String(0), args.Error(1)
}
func (m *RepoMock) UpdateUser(ctx context.Context, user models.User) (int, error) {
	args := m.Called(ctx, user)
	return args.Int(0), args.Error(1)
}
func (m *RepoMock) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}
func (m *RepoMock) GetUser(ctx context.Context, userUID string) (*models.User, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type ProviderMock struct{ mock.Mock }

func (m *ProviderMock) CreateIdentity(ctx context.Context, email, pass, displayName string) (string, error) {
	args := m.Called(ctx, email, pass, displayName)
	return args.String(0), args.Error(1)
}
func (m *ProviderMock) UpdateIdentity(ctx context.Context, externalID string, fields identity.UpdateIdentityRequest) error {
	return m.Called(ctx, externalID, fields).Error(0)
}

type CacheMock struct{ mock.Mock }

func (m *CacheMock) Get(key string, result any) (bool, error) {
	args := m.Called(key, result)
	return args.Bool(0), args.Error(1)
}
func (m *CacheMock) Set(key string, value any, expiration time.Duration) error {
	return m.Called(key, value, expiration).Error(0)
}
func (m *CacheMock) Invalidate(key string) error {
	return m.Called(key).Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestEnsureUser_CreatesNewUser(t *testing.T) {
	repo := new(RepoMock)
	provider := new(ProviderMock)
	cache := new(CacheMock)
	svc := NewUserRegistryService(repo, provider, cache, newNoopLogger())

	repo.On("GetUserByEmail", mock.Anything, "alice@example.com").
		Return(nil, errs.NotFound("users", "alice@example.com")).Once()
	provider.On("CreateIdentity", mock.Anything, "alice@example.com", "password1", "Alice").
		Return("ext-1", nil).Once()
	repo.On("CreateUser", mock.Anything, mock.MatchedBy(func(u models.User) bool {
		return u.Email == "alice@example.com" && u.ExternalID == "ext-1" &&
			u.Role == models.RoleUser && u.PasswordHash != "password1"
	})).Return("uid-1", nil).Once()
	cache.On("Invalidate", "user:email:alice@example.com").Return(nil).Once()

	uid, err := svc.EnsureUser(context.Background(), "alice@example.com", "Alice", models.RoleUser, "password1")
	require.NoError(t, err)
	assert.Equal(t, "uid-1", uid)
	repo.AssertExpectations(t)
	provider.AssertExpectations(t)
}

func TestEnsureUser_ProviderFailureAbortsRecord(t *testing.T) {
	repo := new(RepoMock)
	provider := new(ProviderMock)
	cache := new(CacheMock)
	svc := NewUserRegistryService(repo, provider, cache, newNoopLogger())

	repo.On("GetUserByEmail", mock.Anything, "bob@example.com").
		Return(nil, errs.NotFound("users", "bob@example.com")).Once()
	provider.On("CreateIdentity", mock.Anything, "bob@example.com", "password1", "Bob").
		Return("", &errs.IdentityProviderError{Op: "create", Err: errors.New("503")}).Once()

	_, err := svc.EnsureUser(context.Background(), "bob@example.com", "Bob", models.RoleUser, "password1")
	require.Error(t, err)

	var provErr *errs.IdentityProviderError
	assert.True(t, errors.As(err, &provErr))
	// Локальная запись не создаётся вовсе.
	repo.AssertNotCalled(t, "CreateUser", mock.Anything, mock.Anything)
}

func TestEnsureUser_UpdatesExistingPreservingUID(t *testing.T) {
	repo := new(RepoMock)
	provider := new(ProviderMock)
	cache := new(CacheMock)
	svc := NewUserRegistryService(repo, provider, cache, newNoopLogger())

	existing := &models.User{
		UID:        "uid-9",
		Email:      "carol@example.com",
		ExternalID: "ext-9",
		Role:       models.RoleUser,
	}
	repo.On("GetUserByEmail", mock.Anything, "carol@example.com").Return(existing, nil).Once()
	provider.On("UpdateIdentity", mock.Anything, "ext-9", mock.AnythingOfType("identity.UpdateIdentityRequest")).
		Return(nil).Once()
	repo.On("UpdateUser", mock.Anything, mock.MatchedBy(func(u models.User) bool {
		return u.UID == "uid-9" && u.DisplayName == "Carol Updated" && u.Role == models.RoleAdmin
	})).Return(1, nil).Once()
	cache.On("Invalidate", "user:email:carol@example.com").Return(nil).Once()

	uid, err := svc.EnsureUser(context.Background(), "carol@example.com", "Carol Updated", models.RoleAdmin, "newpass1")
	require.NoError(t, err)
	assert.Equal(t, "uid-9", uid)
	repo.AssertExpectations(t)
	provider.AssertExpectations(t)
}

func TestEnsureUser_BackfillsMissingExternalID(t *testing.T) {
	repo := new(RepoMock)
	provider := new(ProviderMock)
	cache := new(CacheMock)
	svc := NewUserRegistryService(repo, provider, cache, newNoopLogger())

	existing := &models.User{UID: "uid-3", Email: "dave@example.com", ExternalID: ""}
	repo.On("GetUserByEmail", mock.Anything, "dave@example.com").Return(existing, nil).Once()
	provider.On("CreateIdentity", mock.Anything, "dave@example.com", "password1", "Dave").
		Return("ext-3", nil).Once()
	repo.On("UpdateUser", mock.Anything, mock.MatchedBy(func(u models.User) bool {
		return u.ExternalID == "ext-3"
	})).Return(1, nil).Once()
	cache.On("Invalidate", "user:email:dave@example.com").Return(nil).Once()

	_, err := svc.EnsureUser(context.Background(), "dave@example.com", "Dave", models.RoleUser, "password1")
	require.NoError(t, err)
	provider.AssertNotCalled(t, "UpdateIdentity", mock.Anything, mock.Anything, mock.Anything)
}

func TestGetByEmail_CacheHitSkipsStorage(t *testing.T) {
	repo := new(RepoMock)
	provider := new(ProviderMock)
	cache := new(CacheMock)
	svc := NewUserRegistryService(repo, provider, cache, newNoopLogger())

	cache.On("Get", "user:email:eve@example.com", mock.Anything).Return(true, nil).Once()

	_, err := svc.GetByEmail(context.Background(), "eve@example.com")
	require.NoError(t, err)
	repo.AssertNotCalled(t, "GetUserByEmail", mock.Anything, mock.Anything)
}

func TestGetByEmail_CacheMissReadsStorage(t *testing.T) {
	repo := new(RepoMock)
	provider := new(ProviderMock)
	cache := new(CacheMock)
	svc := NewUserRegistryService(repo, provider, cache, newNoopLogger())

	user := &models.User{UID: "uid-5", Email: "frank@example.com"}
	cache.On("Get", "user:email:frank@example.com", mock.Anything).Return(false, nil).Once()
	repo.On("GetUserByEmail", mock.Anything, "frank@example.com").Return(user, nil).Once()
	cache.On("Set", "user:email:frank@example.com", user, time.Hour).Return(nil).Once()

	got, err := svc.GetByEmail(context.Background(), "frank@example.com")
	require.NoError(t, err)
	assert.Equal(t, "uid-5", got.UID)
	repo.AssertExpectations(t)
	cache.AssertExpectations(t)
}
