// Package services содержит бизнес-логику реестра организаций и их участников.
//
// Обе операции реестра — upsert по естественному ключу: организация
// ищется по владельцу перед созданием, участник — по паре (организация,
// email). Поиск перед созданием не транзакционен против конкурентных
// запусков: узкое окно гонки принято осознанно, дубликаты ловит аудитор.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/licensing-reconciler/internal/errs"
	"github.com/magabrotheeeer/licensing-reconciler/internal/models"
)

// OrgRepository определяет методы для работы с организациями и участниками в хранилище.
type OrgRepository interface {
	// CreateOrganization сохраняет новую организацию и возвращает её UID.
	CreateOrganization(ctx context.Context, org models.Organization) (string, error)
	// GetOrganizationByOwner возвращает организацию по UID владельца.
	GetOrganizationByOwner(ctx context.Context, ownerUID string) (*models.Organization, error)
	// OrganizationExists проверяет наличие организации по UID.
	OrganizationExists(ctx context.Context, orgUID string) (bool, error)
	// CreateMember сохраняет нового участника и возвращает его UID.
	CreateMember(ctx context.Context, m models.OrgMember) (string, error)
	// GetMemberByNaturalKey возвращает участника по паре (организация, email).
	GetMemberByNaturalKey(ctx context.Context, orgUID, email string) (*models.OrgMember, error)
	// PromoteMember переводит участника в активное состояние по месту.
	PromoteMember(ctx context.Context, memberUID, userUID string) (int, error)
	// GetUser возвращает пользователя по UID.
	GetUser(ctx context.Context, userUID string) (*models.User, error)
}

// OrgService реализует идемпотентные операции над организациями и участниками.
type OrgService struct {
	repo OrgRepository
	log  *slog.Logger
}

// NewOrgService создает новый экземпляр OrgService.
func NewOrgService(repo OrgRepository, log *slog.Logger) *OrgService {
	return &OrgService{
		repo: repo,
		log:  log,
	}
}

// EnsureOrganizationForOwner возвращает организацию владельца, создавая
// её при отсутствии вместе с записью участника OWNER в статусе ACTIVE.
func (s *OrgService) EnsureOrganizationForOwner(ctx context.Context, ownerUID, name, tier string) (string, error) {
	const op = "orgs.EnsureOrganizationForOwner"

	existing, err := s.repo.GetOrganizationByOwner(ctx, ownerUID)
	if err == nil {
		return existing.UID, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	owner, err := s.repo.GetUser(ctx, ownerUID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	orgUID, err := s.repo.CreateOrganization(ctx, models.Organization{
		Name:     name,
		OwnerUID: ownerUID,
		Tier:     tier,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now()
	if _, err := s.repo.CreateMember(ctx, models.OrgMember{
		OrgUID:       orgUID,
		Email:        owner.Email,
		UserUID:      ownerUID,
		Role:         models.MemberRoleOwner,
		Status:       models.MemberStatusActive,
		SeatReserved: true,
		InvitedBy:    owner.Email,
		InvitedAt:    now,
		JoinedAt:     &now,
	}); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("created organization", slog.String("org_uid", orgUID), slog.String("owner_uid", ownerUID))
	return orgUID, nil
}

// EnsureActiveMember идемпотентно создаёт или продвигает участника
// организации по естественному ключу (организация, email). Найденная
// запись продвигается по месту, дубликат не создаётся. Организация
// при отсутствии не создаётся — это errs.ErrNotFound.
func (s *OrgService) EnsureActiveMember(ctx context.Context, orgUID, email, userUID, role, invitedBy string) (string, error) {
	const op = "orgs.EnsureActiveMember"

	exists, err := s.repo.OrganizationExists(ctx, orgUID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if !exists {
		return "", fmt.Errorf("%s: %w", op, errs.NotFound("organizations", orgUID))
	}

	member, err := s.repo.GetMemberByNaturalKey(ctx, orgUID, email)
	if errors.Is(err, errs.ErrNotFound) {
		now := time.Now()
		memberUID, err := s.repo.CreateMember(ctx, models.OrgMember{
			OrgUID:       orgUID,
			Email:        email,
			UserUID:      userUID,
			Role:         role,
			Status:       models.MemberStatusActive,
			SeatReserved: true,
			InvitedBy:    invitedBy,
			InvitedAt:    now,
			JoinedAt:     &now,
		})
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		s.log.Info("created member", slog.String("org_uid", orgUID), slog.String("email", email))
		return memberUID, nil
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	linkUID := userUID
	if linkUID == "" {
		linkUID = member.UserUID
	}
	needsPromotion := member.Status != models.MemberStatusActive ||
		!member.SeatReserved ||
		member.UserUID != linkUID
	if !needsPromotion {
		return member.UID, nil
	}

	if _, err := s.repo.PromoteMember(ctx, member.UID, linkUID); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("promoted member", slog.String("member_uid", member.UID), slog.String("email", email))
	return member.UID, nil
}
