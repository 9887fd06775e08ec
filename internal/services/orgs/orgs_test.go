package services

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/licensing-reconciler/internal/errs"
	"github.com/magabrotheeeer/licensing-reconciler/internal/models"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) CreateOrganization(ctx context.Context, org models.Organization) (string, error) {
	args := m.Called(ctx, org)
	return args.String(0), args.Error(1)
}
func (m *RepoMock) GetOrganizationByOwner(ctx context.Context, ownerUID string) (*models.Organization, error) {
	args := m.Called(ctx, ownerUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Organization), args.Error(1)
}
func (m *RepoMock) OrganizationExists(ctx context.Context, orgUID string) (bool, error) {
	args := m.Called(ctx, orgUID)
	return args.Bool(0), args.Error(1)
}
func (m *RepoMock) CreateMember(ctx context.Context, member models.OrgMember) (string, error) {
	args := m.Called(ctx, member)
	return args.String(0), args.Error(1)
}
func (m *RepoMock) GetMemberByNaturalKey(ctx context.Context, orgUID, email string) (*models.OrgMember, error) {
	args := m.Called(ctx, orgUID, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OrgMember), args.Error(1)
}
func (m *RepoMock) PromoteMember(ctx context.Context, memberUID, userUID string) (int, error) {
	args := m.Called(ctx, memberUID, userUID)
	return args.Int(0), args.Error(1)
}
func (m *RepoMock) GetUser(ctx context.Context, userUID string) (*models.User, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestEnsureOrganizationForOwner_ReturnsExisting(t *testing.T) {
	repo := new(RepoMock)
	svc := NewOrgService(repo, newNoopLogger())

	repo.On("GetOrganizationByOwner", mock.Anything, "owner-1").
		Return(&models.Organization{UID: "org-1"}, nil).Once()

	orgUID, err := svc.EnsureOrganizationForOwner(context.Background(), "owner-1", "Acme", models.TierEnterprise)
	require.NoError(t, err)
	assert.Equal(t, "org-1", orgUID)
	repo.AssertNotCalled(t, "CreateOrganization", mock.Anything, mock.Anything)
}

func TestEnsureOrganizationForOwner_CreatesWithOwnerMember(t *testing.T) {
	repo := new(RepoMock)
	svc := NewOrgService(repo, newNoopLogger())

	repo.On("GetOrganizationByOwner", mock.Anything, "owner-1").
		Return(nil, errs.NotFound("organizations", "owner-1")).Once()
	repo.On("GetUser", mock.Anything, "owner-1").
		Return(&models.User{UID: "owner-1", Email: "boss@acme.com"}, nil).Once()
	repo.On("CreateOrganization", mock.Anything, mock.MatchedBy(func(org models.Organization) bool {
		return org.Name == "Acme" && org.OwnerUID == "owner-1" && org.Tier == models.TierEnterprise
	})).Return("org-1", nil).Once()
	repo.On("CreateMember", mock.Anything, mock.MatchedBy(func(m models.OrgMember) bool {
		return m.OrgUID == "org-1" && m.Email == "boss@acme.com" &&
			m.Role == models.MemberRoleOwner && m.Status == models.MemberStatusActive &&
			m.SeatReserved && m.JoinedAt != nil
	})).Return("member-1", nil).Once()

	orgUID, err := svc.EnsureOrganizationForOwner(context.Background(), "owner-1", "Acme", models.TierEnterprise)
	require.NoError(t, err)
	assert.Equal(t, "org-1", orgUID)
	repo.AssertExpectations(t)
}

func TestEnsureOrganizationForOwner_MissingOwner(t *testing.T) {
	repo := new(RepoMock)
	svc := NewOrgService(repo, newNoopLogger())

	repo.On("GetOrganizationByOwner", mock.Anything, "ghost").
		Return(nil, errs.NotFound("organizations", "ghost")).Once()
	repo.On("GetUser", mock.Anything, "ghost").
		Return(nil, errs.NotFound("users", "ghost")).Once()

	_, err := svc.EnsureOrganizationForOwner(context.Background(), "ghost", "Acme", models.TierEnterprise)
	assert.ErrorIs(t, err, errs.ErrNotFound)
	repo.AssertNotCalled(t, "CreateOrganization", mock.Anything, mock.Anything)
}

func TestEnsureActiveMember(t *testing.T) {
	invited := &models.OrgMember{
		UID:    "member-1",
		OrgUID: "org-1",
		Email:  "dev@acme.com",
		Status: models.MemberStatusInvited,
	}
	active := &models.OrgMember{
		UID:          "member-1",
		OrgUID:       "org-1",
		Email:        "dev@acme.com",
		UserUID:      "user-7",
		Status:       models.MemberStatusActive,
		SeatReserved: true,
	}

	tests := []struct {
		name       string
		setupMocks func(repo *RepoMock)
		userUID    string
		wantUID    string
		wantErr    error
	}{
		{
			name: "creates member when natural key is unknown",
			setupMocks: func(repo *RepoMock) {
				repo.On("OrganizationExists", mock.Anything, "org-1").Return(true, nil).Once()
				repo.On("GetMemberByNaturalKey", mock.Anything, "org-1", "dev@acme.com").
					Return(nil, errs.NotFound("org_members", "dev@acme.com")).Once()
				repo.On("CreateMember", mock.Anything, mock.MatchedBy(func(m models.OrgMember) bool {
					return m.OrgUID == "org-1" && m.Email == "dev@acme.com" &&
						m.Status == models.MemberStatusActive && m.SeatReserved
				})).Return("member-1", nil).Once()
			},
			userUID: "user-7",
			wantUID: "member-1",
		},
		{
			name: "promotes invited member in place",
			setupMocks: func(repo *RepoMock) {
				repo.On("OrganizationExists", mock.Anything, "org-1").Return(true, nil).Once()
				repo.On("GetMemberByNaturalKey", mock.Anything, "org-1", "dev@acme.com").
					Return(invited, nil).Once()
				repo.On("PromoteMember", mock.Anything, "member-1", "user-7").Return(1, nil).Once()
			},
			userUID: "user-7",
			wantUID: "member-1",
		},
		{
			name: "second run leaves active member untouched",
			setupMocks: func(repo *RepoMock) {
				repo.On("OrganizationExists", mock.Anything, "org-1").Return(true, nil).Once()
				repo.On("GetMemberByNaturalKey", mock.Anything, "org-1", "dev@acme.com").
					Return(active, nil).Once()
			},
			userUID: "user-7",
			wantUID: "member-1",
		},
		{
			name: "relinks active member to a different user",
			setupMocks: func(repo *RepoMock) {
				repo.On("OrganizationExists", mock.Anything, "org-1").Return(true, nil).Once()
				repo.On("GetMemberByNaturalKey", mock.Anything, "org-1", "dev@acme.com").
					Return(active, nil).Once()
				repo.On("PromoteMember", mock.Anything, "member-1", "user-42").Return(1, nil).Once()
			},
			userUID: "user-42",
			wantUID: "member-1",
		},
		{
			name: "missing organization is NotFound",
			setupMocks: func(repo *RepoMock) {
				repo.On("OrganizationExists", mock.Anything, "org-1").Return(false, nil).Once()
			},
			userUID: "user-7",
			wantErr: errs.ErrNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			svc := NewOrgService(repo, newNoopLogger())
			tt.setupMocks(repo)

			uid, err := svc.EnsureActiveMember(context.Background(), "org-1", "dev@acme.com",
				tt.userUID, models.MemberRoleMember, "boss@acme.com")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantUID, uid)
			}
			repo.AssertExpectations(t)
		})
	}
}
