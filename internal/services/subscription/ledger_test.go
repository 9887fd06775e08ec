package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/licensing-reconciler/internal/errs"
	"github.com/magabrotheeeer/licensing-reconciler/internal/models"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) CreateSubscription(ctx context.Context, sub models.Subscription) (string, error) {
	args := m.Called(ctx, sub)
	return args.String(0), args.Error(1)
}
func (m *RepoMock) GetSubscription(ctx context.Context, subUID string) (*models.Subscription, error) {
	args := m.Called(ctx, subUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}
func (m *RepoMock) LinkSubscriptionToOrganization(ctx context.Context, subUID, orgUID string) (int, error) {
	args := m.Called(ctx, subUID, orgUID)
	return args.Int(0), args.Error(1)
}
func (m *RepoMock) ListSubscriptions(ctx context.Context, limit, offset int) ([]*models.Subscription, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Subscription), args.Error(1)
}
func (m *RepoMock) UserExists(ctx context.Context, userUID string) (bool, error) {
	args := m.Called(ctx, userUID)
	return args.Bool(0), args.Error(1)
}
func (m *RepoMock) OrganizationExists(ctx context.Context, orgUID string) (bool, error) {
	args := m.Called(ctx, orgUID)
	return args.Bool(0), args.Error(1)
}
func (m *RepoMock) HasActiveSubscription(ctx context.Context, userUID, tier string) (bool, error) {
	args := m.Called(ctx, userUID, tier)
	return args.Bool(0), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestCreateSubscription(t *testing.T) {
	tests := []struct {
		name       string
		setupMocks func(repo *RepoMock)
		tier       string
		seats      int
		cycle      string
		wantErr    bool
		checkSub   func(t *testing.T, sub models.Subscription)
	}{
		{
			name: "basic with defaults",
			setupMocks: func(repo *RepoMock) {
				repo.On("UserExists", mock.Anything, "user-1").Return(true, nil).Once()
				repo.On("CreateSubscription", mock.Anything, mock.AnythingOfType("models.Subscription")).
					Return("sub-1", nil).Once()
			},
			tier:  models.TierBasic,
			seats: 1,
			checkSub: func(t *testing.T, sub models.Subscription) {
				assert.Equal(t, int64(2900), sub.PricePerSeat)
				assert.Equal(t, models.BillingCycleMonthly, sub.BillingCycle)
				assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
				assert.WithinDuration(t, sub.CurrentPeriodStart.AddDate(0, 0, 30), sub.CurrentPeriodEnd, time.Second)
			},
		},
		{
			name: "enterprise is annual",
			setupMocks: func(repo *RepoMock) {
				repo.On("UserExists", mock.Anything, "user-1").Return(true, nil).Once()
				repo.On("CreateSubscription", mock.Anything, mock.AnythingOfType("models.Subscription")).
					Return("sub-2", nil).Once()
			},
			tier:  models.TierEnterprise,
			seats: 50,
			checkSub: func(t *testing.T, sub models.Subscription) {
				assert.Equal(t, int64(19900), sub.PricePerSeat)
				assert.Equal(t, models.BillingCycleAnnual, sub.BillingCycle)
				assert.WithinDuration(t, sub.CurrentPeriodStart.AddDate(0, 0, 365), sub.CurrentPeriodEnd, time.Second)
			},
		},
		{
			name:       "unknown tier",
			setupMocks: func(repo *RepoMock) {},
			tier:       "PLATINUM",
			seats:      1,
			wantErr:    true,
		},
		{
			name:       "below seat minimum",
			setupMocks: func(repo *RepoMock) {},
			tier:       models.TierPro,
			seats:      3,
			wantErr:    true,
		},
		{
			name:       "unknown billing cycle",
			setupMocks: func(repo *RepoMock) {},
			tier:       models.TierBasic,
			seats:      1,
			cycle:      "WEEKLY",
			wantErr:    true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			svc := NewLedgerService(repo, newNoopLogger())
			tt.setupMocks(repo)

			uid, err := svc.CreateSubscription(context.Background(), "user-1", tt.tier, tt.seats, tt.cycle)
			if tt.wantErr {
				assert.Error(t, err)
				repo.AssertNotCalled(t, "CreateSubscription", mock.Anything, mock.Anything)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, uid)
			if tt.checkSub != nil {
				sub := repo.Calls[1].Arguments.Get(1).(models.Subscription)
				tt.checkSub(t, sub)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestCreateSubscription_MissingUser(t *testing.T) {
	repo := new(RepoMock)
	svc := NewLedgerService(repo, newNoopLogger())

	repo.On("UserExists", mock.Anything, "ghost").Return(false, nil).Once()

	_, err := svc.CreateSubscription(context.Background(), "ghost", models.TierBasic, 1, "")
	assert.ErrorIs(t, err, errs.ErrNotFound)
	repo.AssertNotCalled(t, "CreateSubscription", mock.Anything, mock.Anything)
}

func TestLinkToOrganization(t *testing.T) {
	repo := new(RepoMock)
	svc := NewLedgerService(repo, newNoopLogger())

	repo.On("OrganizationExists", mock.Anything, "org-1").Return(true, nil).Twice()
	repo.On("LinkSubscriptionToOrganization", mock.Anything, "sub-1", "org-1").Return(1, nil).Once()
	// Повторный вызов: строка уже проставлена, запись не меняется.
	repo.On("LinkSubscriptionToOrganization", mock.Anything, "sub-1", "org-1").Return(0, nil).Once()

	require.NoError(t, svc.LinkToOrganization(context.Background(), "sub-1", "org-1"))
	require.NoError(t, svc.LinkToOrganization(context.Background(), "sub-1", "org-1"))
	repo.AssertExpectations(t)
}

func TestHasActiveSubscription(t *testing.T) {
	repo := new(RepoMock)
	svc := NewLedgerService(repo, newNoopLogger())

	repo.On("HasActiveSubscription", mock.Anything, "user-1", models.TierBasic).Return(true, nil).Once()
	repo.On("HasActiveSubscription", mock.Anything, "user-1", models.TierPro).Return(false, nil).Once()

	has, err := svc.HasActiveSubscription(context.Background(), "user-1", models.TierBasic)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = svc.HasActiveSubscription(context.Background(), "user-1", models.TierPro)
	require.NoError(t, err)
	assert.False(t, has)
	repo.AssertExpectations(t)
}

func TestLinkToOrganization_MissingOrg(t *testing.T) {
	repo := new(RepoMock)
	svc := NewLedgerService(repo, newNoopLogger())

	repo.On("OrganizationExists", mock.Anything, "ghost").Return(false, nil).Once()

	err := svc.LinkToOrganization(context.Background(), "sub-1", "ghost")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}
