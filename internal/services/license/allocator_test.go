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
	"github.com/magabrotheeeer/licensing-reconciler/internal/lib/licensekey"
	"github.com/magabrotheeeer/licensing-reconciler/internal/models"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) CreateLicense(ctx context.Context, lic models.License) (string, error) {
	args := m.Called(ctx, lic)
	return args.String(0), args.Error(1)
}
func (m *RepoMock) LicenseKeyExists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}
func (m *RepoMock) ListLicensesByUser(ctx context.Context, userUID string) ([]*models.License, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.License), args.Error(1)
}
func (m *RepoMock) UpdateLicenseStatus(ctx context.Context, licenseUID, status string) (int, error) {
	args := m.Called(ctx, licenseUID, status)
	return args.Int(0), args.Error(1)
}
func (m *RepoMock) MakeLicenseKeeper(ctx context.Context, licenseUID string, expiresAt time.Time) (int, error) {
	args := m.Called(ctx, licenseUID, expiresAt)
	return args.Int(0), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestGenerateLicenses(t *testing.T) {
	repo := new(RepoMock)
	svc := NewAllocatorService(repo, newNoopLogger(), false)

	repo.On("LicenseKeyExists", mock.Anything, mock.AnythingOfType("string")).Return(false, nil).Twice()
	repo.On("CreateLicense", mock.Anything, mock.MatchedBy(func(lic models.License) bool {
		return lic.SubscriptionUID == "sub-1" &&
			lic.Status == models.LicenseStatusActive &&
			lic.MaxActivations == 1 &&
			licensekey.Valid(lic.Key)
	})).Return("lic-uid", nil).Twice()

	uids, err := svc.GenerateLicenses(context.Background(), "user-1", "sub-1", models.TierBasic,
		2, models.LicenseStatusActive, 12)
	require.NoError(t, err)
	assert.Len(t, uids, 2)
	repo.AssertExpectations(t)
}

func TestGenerateLicenses_KeyCollisionRetried(t *testing.T) {
	repo := new(RepoMock)
	svc := NewAllocatorService(repo, newNoopLogger(), false)

	repo.On("LicenseKeyExists", mock.Anything, mock.AnythingOfType("string")).Return(true, nil).Once()
	repo.On("LicenseKeyExists", mock.Anything, mock.AnythingOfType("string")).Return(false, nil).Once()
	repo.On("CreateLicense", mock.Anything, mock.AnythingOfType("models.License")).Return("lic-uid", nil).Once()

	uids, err := svc.GenerateLicenses(context.Background(), "user-1", "sub-1", models.TierPro,
		1, models.LicenseStatusPending, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"lic-uid"}, uids)
	repo.AssertExpectations(t)
}

func TestGenerateLicenses_KeySpaceExhausted(t *testing.T) {
	repo := new(RepoMock)
	svc := NewAllocatorService(repo, newNoopLogger(), false)

	repo.On("LicenseKeyExists", mock.Anything, mock.AnythingOfType("string")).Return(true, nil)

	_, err := svc.GenerateLicenses(context.Background(), "user-1", "sub-1", models.TierBasic,
		1, models.LicenseStatusActive, 12)
	assert.ErrorIs(t, err, errs.ErrDuplicateConflict)
	repo.AssertNotCalled(t, "CreateLicense", mock.Anything, mock.Anything)
}

func lic(uid, subUID, status string, expiresAt *time.Time, updatedAt time.Time) *models.License {
	return &models.License{
		UID:             uid,
		UserUID:         "user-1",
		SubscriptionUID: subUID,
		Status:          status,
		ExpiresAt:       expiresAt,
		UpdatedAt:       updatedAt,
	}
}

func TestNormalize_KeeperPrecedence(t *testing.T) {
	now := time.Now()
	past := now.Add(-24 * time.Hour)
	future := now.Add(30 * 24 * time.Hour)
	older := now.Add(-2 * time.Hour)
	newer := now.Add(-1 * time.Hour)

	tests := []struct {
		name       string
		licenses   []*models.License
		wantKeeper string
	}{
		{
			// Истёкшая ACTIVE проигрывает неистёкшей PENDING.
			name: "pending beats expired active and revoked",
			licenses: []*models.License{
				lic("a", "sub-1", models.LicenseStatusActive, &past, newer),
				lic("b", "sub-1", models.LicenseStatusPending, &future, older),
				lic("c", "sub-1", models.LicenseStatusRevoked, &future, newer),
			},
			wantKeeper: "b",
		},
		{
			name: "active beats pending",
			licenses: []*models.License{
				lic("a", "sub-1", models.LicenseStatusActive, &future, older),
				lic("b", "sub-1", models.LicenseStatusPending, &future, newer),
			},
			wantKeeper: "a",
		},
		{
			name: "most recent wins when nothing is current",
			licenses: []*models.License{
				lic("a", "sub-1", models.LicenseStatusExpired, &past, older),
				lic("b", "sub-1", models.LicenseStatusSuspended, &past, newer),
			},
			wantKeeper: "b",
		},
		{
			name: "ties broken by uid",
			licenses: []*models.License{
				lic("b", "sub-1", models.LicenseStatusActive, &future, newer),
				lic("a", "sub-1", models.LicenseStatusActive, &future, newer),
			},
			wantKeeper: "a",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keeper := pickKeeper(tt.licenses, now)
			assert.Equal(t, tt.wantKeeper, keeper.UID)
		})
	}
}

func TestNormalize_RevokesNonKeepers(t *testing.T) {
	now := time.Now()
	future := now.Add(30 * 24 * time.Hour)

	repo := new(RepoMock)
	svc := NewAllocatorService(repo, newNoopLogger(), false)

	repo.On("ListLicensesByUser", mock.Anything, "user-1").Return([]*models.License{
		lic("keeper", "sub-1", models.LicenseStatusActive, &future, now),
		lic("extra", "sub-1", models.LicenseStatusActive, &future, now.Add(-time.Hour)),
		lic("gone", "sub-1", models.LicenseStatusRevoked, &future, now),
	}, nil).Once()
	repo.On("UpdateLicenseStatus", mock.Anything, "extra", models.LicenseStatusRevoked).Return(1, nil).Once()

	summary, err := svc.NormalizeToSingleActiveLicense(context.Background(), "user-1")
	require.NoError(t, err)
	// Хранитель уже ACTIVE и не истёк, отозванная запись не трогается.
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, 0, summary.Errored)
	repo.AssertExpectations(t)
}

func TestNormalize_SecondRunIsNoop(t *testing.T) {
	now := time.Now()
	future := now.Add(30 * 24 * time.Hour)

	repo := new(RepoMock)
	svc := NewAllocatorService(repo, newNoopLogger(), false)

	// Состояние после первого прогона: один хранитель, остальные отозваны.
	repo.On("ListLicensesByUser", mock.Anything, "user-1").Return([]*models.License{
		lic("keeper", "sub-1", models.LicenseStatusActive, &future, now),
		lic("extra", "sub-1", models.LicenseStatusRevoked, &future, now),
	}, nil).Once()

	summary, err := svc.NormalizeToSingleActiveLicense(context.Background(), "user-1")
	require.NoError(t, err)
	assert.False(t, summary.Changed())
	repo.AssertNotCalled(t, "UpdateLicenseStatus", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "MakeLicenseKeeper", mock.Anything, mock.Anything, mock.Anything)
}

func TestNormalize_ExtendsLapsedKeeper(t *testing.T) {
	now := time.Now()
	past := now.Add(-24 * time.Hour)

	repo := new(RepoMock)
	svc := NewAllocatorService(repo, newNoopLogger(), false)

	repo.On("ListLicensesByUser", mock.Anything, "user-1").Return([]*models.License{
		lic("keeper", "sub-1", models.LicenseStatusExpired, &past, now),
	}, nil).Once()
	repo.On("MakeLicenseKeeper", mock.Anything, "keeper", mock.MatchedBy(func(expiry time.Time) bool {
		return expiry.After(now.Add(364 * 24 * time.Hour))
	})).Return(1, nil).Once()

	summary, err := svc.NormalizeToSingleActiveLicense(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)
	repo.AssertExpectations(t)
}

func TestNormalize_DryRunWritesNothing(t *testing.T) {
	now := time.Now()
	past := now.Add(-24 * time.Hour)

	repo := new(RepoMock)
	svc := NewAllocatorService(repo, newNoopLogger(), true)

	repo.On("ListLicensesByUser", mock.Anything, "user-1").Return([]*models.License{
		lic("a", "sub-1", models.LicenseStatusExpired, &past, now),
		lic("b", "sub-1", models.LicenseStatusPending, &past, now),
	}, nil).Once()

	summary, err := svc.NormalizeToSingleActiveLicense(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Updated)
	repo.AssertNotCalled(t, "UpdateLicenseStatus", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "MakeLicenseKeeper", mock.Anything, mock.Anything, mock.Anything)
}

func TestNormalize_RepoError(t *testing.T) {
	repo := new(RepoMock)
	svc := NewAllocatorService(repo, newNoopLogger(), false)

	repo.On("ListLicensesByUser", mock.Anything, "user-1").
		Return(nil, errors.New("connection refused")).Once()

	_, err := svc.NormalizeToSingleActiveLicense(context.Background(), "user-1")
	assert.Error(t, err)
}
