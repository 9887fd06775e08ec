// Package services содержит посев демонстрационных учётных записей:
// пользователь, подписка, организация с участниками для корпоративного
// тарифа, лицензия и платёжные записи. Посев идемпотентен — повторный
// запуск с тем же файлом не создаёт дубликатов.
package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator"
	"github.com/ilyakaznacheev/cleanenv"

	"github.com/magabrotheeeer/licensing-reconciler/internal/lib/sl"
	"github.com/magabrotheeeer/licensing-reconciler/internal/models"
)

// Срок действия посеянной лицензии в месяцах.
const seedLicenseValidityMonths = 12

// SeedConfig — конфигурация посева, читается из yaml-файла.
type SeedConfig struct {
	Accounts []models.SeedAccount `yaml:"accounts" validate:"required,dive"`
}

// LoadSeedConfig читает и валидирует конфигурацию посева.
func LoadSeedConfig(path string) (*SeedConfig, error) {
	const op = "seeder.LoadSeedConfig"
	var cfg SeedConfig
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

// UserEnsurer приводит пользователя реестра к данным посева.
type UserEnsurer interface {
	EnsureUser(ctx context.Context, email, displayName, role, pass string) (string, error)
}

// SubscriptionCreator создаёт подписку и привязывает её к организации.
type SubscriptionCreator interface {
	CreateSubscription(ctx context.Context, userUID, tier string, seats int, billingCycle string) (string, error)
	LinkToOrganization(ctx context.Context, subUID, orgUID string) error
	HasActiveSubscription(ctx context.Context, userUID, tier string) (bool, error)
}

// OrgEnsurer приводит организацию владельца и её участников к данным посева.
type OrgEnsurer interface {
	EnsureOrganizationForOwner(ctx context.Context, ownerUID, name, tier string) (string, error)
	EnsureActiveMember(ctx context.Context, orgUID, email, userUID, role, invitedBy string) (string, error)
}

// LicenseGenerator выдаёт лицензии под посеянные подписки.
type LicenseGenerator interface {
	GenerateLicenses(ctx context.Context, userUID, subUID, tier string, count int, status string, validityMonths int) ([]string, error)
}

// BillingCreator создаёт платёжные записи под посеянные подписки.
type BillingCreator interface {
	CreateInvoice(ctx context.Context, subUID string) (*models.Invoice, error)
	CreateMatchingPayment(ctx context.Context, inv *models.Invoice) (*models.Payment, error)
	EnsureInvoicePaymentLink(ctx context.Context, inv *models.Invoice) (bool, error)
}

// SeederService оркестрирует посев учётных записей через сервисы домена.
type SeederService struct {
	users    UserEnsurer
	subs     SubscriptionCreator
	orgs     OrgEnsurer
	licenses LicenseGenerator
	billing  BillingCreator
	log      *slog.Logger
	dryRun   bool
}

// NewSeederService создает новый экземпляр SeederService.
func NewSeederService(users UserEnsurer, subs SubscriptionCreator, orgs OrgEnsurer,
	licenses LicenseGenerator, billing BillingCreator, log *slog.Logger, dryRun bool) *SeederService {
	return &SeederService{
		users:    users,
		subs:     subs,
		orgs:     orgs,
		licenses: licenses,
		billing:  billing,
		log:      log,
		dryRun:   dryRun,
	}
}

// Seed прогоняет все учётные записи конфигурации. Ошибка по одной
// записи логируется и не прерывает посев остальных.
func (s *SeederService) Seed(ctx context.Context, cfg *SeedConfig) (models.Summary, error) {
	const op = "seeder.Seed"
	var summary models.Summary

	for _, account := range cfg.Accounts {
		if s.dryRun {
			s.log.Info("dry-run: would seed account",
				slog.String("email", account.Email), slog.String("tier", account.Tier))
			summary.Skipped++
			continue
		}
		created, err := s.seedAccount(ctx, account)
		if err != nil {
			s.log.Error("failed to seed account", slog.String("email", account.Email), sl.Err(err))
			summary.Errored++
			continue
		}
		if created {
			summary.Created++
		} else {
			summary.Skipped++
		}
	}
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("%s: %w", op, err)
	}
	return summary, nil
}

// seedAccount приводит одну учётную запись к данным посева. Если у
// пользователя уже есть активная подписка тарифа, запись считается
// посеянной ранее: подписка, лицензия и платёжные записи не дублируются.
func (s *SeederService) seedAccount(ctx context.Context, account models.SeedAccount) (bool, error) {
	userUID, err := s.users.EnsureUser(ctx, account.Email, account.Name, account.Role, account.Password)
	if err != nil {
		return false, err
	}

	has, err := s.subs.HasActiveSubscription(ctx, userUID, account.Tier)
	if err != nil {
		return false, err
	}
	if has {
		s.log.Info("account already seeded",
			slog.String("email", account.Email), slog.String("tier", account.Tier))
		return false, nil
	}

	subUID, err := s.subs.CreateSubscription(ctx, userUID, account.Tier, account.Seats, account.BillingCycle)
	if err != nil {
		return false, err
	}

	if account.Tier == models.TierEnterprise && account.OrgName != "" {
		orgUID, err := s.orgs.EnsureOrganizationForOwner(ctx, userUID, account.OrgName, account.Tier)
		if err != nil {
			return false, err
		}
		if err := s.subs.LinkToOrganization(ctx, subUID, orgUID); err != nil {
			return false, err
		}
		for _, member := range account.Members {
			if _, err := s.orgs.EnsureActiveMember(ctx, orgUID, member.Email, "", member.Role, account.Email); err != nil {
				return false, err
			}
		}
	}

	if _, err := s.licenses.GenerateLicenses(ctx, userUID, subUID, account.Tier,
		1, models.LicenseStatusActive, seedLicenseValidityMonths); err != nil {
		return false, err
	}

	inv, err := s.billing.CreateInvoice(ctx, subUID)
	if err != nil {
		return false, err
	}
	if _, err := s.billing.CreateMatchingPayment(ctx, inv); err != nil {
		return false, err
	}
	if _, err := s.billing.EnsureInvoicePaymentLink(ctx, inv); err != nil {
		return false, err
	}

	s.log.Info("seeded account", slog.String("email", account.Email), slog.String("sub_uid", subUID))
	return true, nil
}
