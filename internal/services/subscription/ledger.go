// Package services содержит бизнес-логику книги подписок.
//
// Создание подписки намеренно не проверяет наличие у пользователя
// уже активной подписки: исторические записи за прошлые периоды
// сосуществуют с одной текущей, а свёртку дубликатов выполняет аудитор.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/licensing-reconciler/internal/errs"
	"github.com/magabrotheeeer/licensing-reconciler/internal/models"
)

// SubscriptionRepository определяет методы для работы с подписками в хранилище.
type SubscriptionRepository interface {
	// CreateSubscription вставляет новую подписку и возвращает её UID.
	CreateSubscription(ctx context.Context, sub models.Subscription) (string, error)
	// GetSubscription возвращает подписку по UID.
	GetSubscription(ctx context.Context, subUID string) (*models.Subscription, error)
	// LinkSubscriptionToOrganization идемпотентно проставляет ссылку на организацию.
	LinkSubscriptionToOrganization(ctx context.Context, subUID, orgUID string) (int, error)
	// ListSubscriptions возвращает список всех подписок с пагинацией.
	ListSubscriptions(ctx context.Context, limit, offset int) ([]*models.Subscription, error)
	// HasActiveSubscription проверяет наличие активной подписки тарифа у пользователя.
	HasActiveSubscription(ctx context.Context, userUID, tier string) (bool, error)
	// UserExists проверяет наличие пользователя по UID.
	UserExists(ctx context.Context, userUID string) (bool, error)
	// OrganizationExists проверяет наличие организации по UID.
	OrganizationExists(ctx context.Context, orgUID string) (bool, error)
}

// LedgerService реализует операции книги подписок.
type LedgerService struct {
	repo SubscriptionRepository
	log  *slog.Logger
}

// NewLedgerService создает новый экземпляр LedgerService.
func NewLedgerService(repo SubscriptionRepository, log *slog.Logger) *LedgerService {
	return &LedgerService{
		repo: repo,
		log:  log,
	}
}

// CreateSubscription создаёт подписку пользователя по тарифу: цена за
// место берётся из фиксированной ценовой таблицы, границы периода —
// от текущего момента на длительность расчётного периода тарифа.
func (s *LedgerService) CreateSubscription(ctx context.Context, userUID, tier string, seats int, billingCycle string) (string, error) {
	const op = "subscription.CreateSubscription"

	policy, ok := models.PolicyFor(tier)
	if !ok {
		return "", fmt.Errorf("%s: unknown tier %q", op, tier)
	}
	if seats < policy.MinSeats {
		return "", fmt.Errorf("%s: tier %s requires at least %d seats, got %d", op, tier, policy.MinSeats, seats)
	}
	if billingCycle == "" {
		billingCycle = policy.BillingCycle
	}
	if billingCycle != models.BillingCycleMonthly && billingCycle != models.BillingCycleAnnual {
		return "", fmt.Errorf("%s: unknown billing cycle %q", op, billingCycle)
	}

	exists, err := s.repo.UserExists(ctx, userUID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if !exists {
		return "", fmt.Errorf("%s: %w", op, errs.NotFound("users", userUID))
	}

	now := time.Now()
	subUID, err := s.repo.CreateSubscription(ctx, models.Subscription{
		UserUID:            userUID,
		Tier:               tier,
		Seats:              seats,
		Status:             models.SubscriptionStatusActive,
		BillingCycle:       billingCycle,
		PricePerSeat:       policy.PricePerSeat,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 0, policy.TermDays),
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("created subscription",
		slog.String("uid", subUID),
		slog.String("tier", tier),
		slog.Int("seats", seats))
	return subUID, nil
}

// LinkToOrganization проставляет подписке ссылку на организацию, если
// она отсутствует или отличается. Повторный вызов ничего не меняет.
func (s *LedgerService) LinkToOrganization(ctx context.Context, subUID, orgUID string) error {
	const op = "subscription.LinkToOrganization"

	exists, err := s.repo.OrganizationExists(ctx, orgUID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !exists {
		return fmt.Errorf("%s: %w", op, errs.NotFound("organizations", orgUID))
	}

	rows, err := s.repo.LinkSubscriptionToOrganization(ctx, subUID, orgUID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rows > 0 {
		s.log.Info("linked subscription to organization",
			slog.String("sub_uid", subUID), slog.String("org_uid", orgUID))
	}
	return nil
}

// List возвращает список подписок с пагинацией.
func (s *LedgerService) List(ctx context.Context, limit, offset int) ([]*models.Subscription, error) {
	return s.repo.ListSubscriptions(ctx, limit, offset)
}

// HasActiveSubscription сообщает, есть ли у пользователя активная
// подписка указанного тарифа.
func (s *LedgerService) HasActiveSubscription(ctx context.Context, userUID, tier string) (bool, error) {
	const op = "subscription.HasActiveSubscription"

	has, err := s.repo.HasActiveSubscription(ctx, userUID, tier)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return has, nil
}
