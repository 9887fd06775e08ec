// Package services содержит бизнес-логику выдачи и нормализации лицензий.
//
// Нормализация — детерминированная свёртка к ровно одной текущей
// лицензии на подписку: внутри каждой подписки выбирается хранитель
// по старшинству ACTIVE-неистёкшая > PENDING-неистёкшая > самая свежая,
// остальные отзываются. Отозванные лицензии никогда не удаляются —
// это след аудита. Повторный прогон не производит новых записей.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/magabrotheeeer/licensing-reconciler/internal/errs"
	"github.com/magabrotheeeer/licensing-reconciler/internal/lib/licensekey"
	"github.com/magabrotheeeer/licensing-reconciler/internal/lib/sl"
	"github.com/magabrotheeeer/licensing-reconciler/internal/models"
)

// Продление хранителя с отсутствующей или прошедшей датой истечения.
const keeperExtension = 365 * 24 * time.Hour

// Число повторных генераций ключа при коллизии.
const keyRetries = 5

// LicenseRepository определяет методы для работы с лицензиями в хранилище.
type LicenseRepository interface {
	// CreateLicense вставляет новую лицензию и возвращает её UID.
	CreateLicense(ctx context.Context, lic models.License) (string, error)
	// LicenseKeyExists проверяет, занят ли ключ лицензии.
	LicenseKeyExists(ctx context.Context, key string) (bool, error)
	// ListLicensesByUser возвращает все лицензии пользователя.
	ListLicensesByUser(ctx context.Context, userUID string) ([]*models.License, error)
	// UpdateLicenseStatus обновляет статус лицензии.
	UpdateLicenseStatus(ctx context.Context, licenseUID, status string) (int, error)
	// MakeLicenseKeeper делает лицензию хранителем: ACTIVE и новая дата истечения.
	MakeLicenseKeeper(ctx context.Context, licenseUID string, expiresAt time.Time) (int, error)
}

// AllocatorService реализует выдачу лицензий и свёртку дубликатов.
type AllocatorService struct {
	repo   LicenseRepository
	log    *slog.Logger
	dryRun bool
}

// NewAllocatorService создает новый экземпляр AllocatorService.
// В режиме dryRun сервис считает намеченные изменения, но не пишет их.
func NewAllocatorService(repo LicenseRepository, log *slog.Logger, dryRun bool) *AllocatorService {
	return &AllocatorService{
		repo:   repo,
		log:    log,
		dryRun: dryRun,
	}
}

// GenerateLicenses создаёт count новых лицензий под подписку.
// Каждый ключ уникален во всём хранилище: коллизия приводит к повторной
// генерации, исчерпание попыток — к ошибке.
func (s *AllocatorService) GenerateLicenses(ctx context.Context, userUID, subUID, tier string, count int, status string, validityMonths int) ([]string, error) {
	const op = "license.GenerateLicenses"

	expiresAt := time.Now().AddDate(0, validityMonths, 0)
	uids := make([]string, 0, count)
	for range count {
		key, err := s.uniqueKey(ctx, tier)
		if err != nil {
			return uids, fmt.Errorf("%s: %w", op, err)
		}
		uid, err := s.repo.CreateLicense(ctx, models.License{
			UserUID:         userUID,
			SubscriptionUID: subUID,
			Key:             key,
			Tier:            tier,
			Status:          status,
			ExpiresAt:       &expiresAt,
			MaxActivations:  1,
		})
		if err != nil {
			return uids, fmt.Errorf("%s: %w", op, err)
		}
		uids = append(uids, uid)
	}
	s.log.Info("generated licenses", slog.Int("count", len(uids)), slog.String("sub_uid", subUID))
	return uids, nil
}

// NormalizeToSingleActiveLicense сворачивает лицензии пользователя к
// ровно одной текущей на подписку. Хранитель принудительно переводится
// в ACTIVE; отсутствующая или прошедшая дата истечения продлевается на
// год. Все прочие лицензии раздела отзываются. Операция идемпотентна:
// второй прогон не производит ни одной записи.
func (s *AllocatorService) NormalizeToSingleActiveLicense(ctx context.Context, userUID string) (models.Summary, error) {
	const op = "license.NormalizeToSingleActiveLicense"
	var summary models.Summary

	licenses, err := s.repo.ListLicensesByUser(ctx, userUID)
	if err != nil {
		return summary, fmt.Errorf("%s: %w", op, err)
	}
	if len(licenses) == 0 {
		return summary, nil
	}

	now := time.Now()
	partitions := make(map[string][]*models.License)
	order := make([]string, 0)
	for _, lic := range licenses {
		if _, seen := partitions[lic.SubscriptionUID]; !seen {
			order = append(order, lic.SubscriptionUID)
		}
		partitions[lic.SubscriptionUID] = append(partitions[lic.SubscriptionUID], lic)
	}

	for _, subUID := range order {
		part := partitions[subUID]
		keeper := pickKeeper(part, now)

		keeperExpiry := now.Add(keeperExtension)
		extend := keeper.ExpiresAt == nil || keeper.ExpiresAt.Before(now)
		if !extend {
			keeperExpiry = *keeper.ExpiresAt
		}

		if keeper.Status != models.LicenseStatusActive || extend {
			if s.dryRun {
				s.log.Info("dry-run: would make license keeper",
					slog.String("uid", keeper.UID), slog.Time("expires_at", keeperExpiry))
				summary.Updated++
			} else if _, err := s.repo.MakeLicenseKeeper(ctx, keeper.UID, keeperExpiry); err != nil {
				s.log.Error("failed to make license keeper", slog.String("uid", keeper.UID), sl.Err(err))
				summary.Errored++
			} else {
				summary.Updated++
			}
		} else {
			summary.Skipped++
		}

		for _, lic := range part {
			if lic.UID == keeper.UID {
				continue
			}
			if lic.Status == models.LicenseStatusRevoked {
				summary.Skipped++
				continue
			}
			if s.dryRun {
				s.log.Info("dry-run: would revoke license", slog.String("uid", lic.UID))
				summary.Updated++
				continue
			}
			if _, err := s.repo.UpdateLicenseStatus(ctx, lic.UID, models.LicenseStatusRevoked); err != nil {
				s.log.Error("failed to revoke license", slog.String("uid", lic.UID), sl.Err(err))
				summary.Errored++
				continue
			}
			summary.Updated++
		}
	}
	return summary, nil
}

// pickKeeper выбирает хранителя раздела по старшинству:
// ACTIVE-неистёкшая, затем PENDING-неистёкшая, затем самая свежая
// запись. Внутри категории побеждает самая свежая, при равенстве —
// меньший UID, чтобы выбор был детерминирован.
func pickKeeper(part []*models.License, now time.Time) *models.License {
	var active, pending []*models.License
	for _, lic := range part {
		switch {
		case lic.Status == models.LicenseStatusActive && !lic.IsExpired(now):
			active = append(active, lic)
		case lic.Status == models.LicenseStatusPending && !lic.IsExpired(now):
			pending = append(pending, lic)
		}
	}
	if len(active) > 0 {
		return mostRecent(active)
	}
	if len(pending) > 0 {
		return mostRecent(pending)
	}
	return mostRecent(part)
}

func mostRecent(part []*models.License) *models.License {
	sorted := make([]*models.License, len(part))
	copy(sorted, part)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].UpdatedAt.Equal(sorted[j].UpdatedAt) {
			return sorted[i].UpdatedAt.After(sorted[j].UpdatedAt)
		}
		return sorted[i].UID < sorted[j].UID
	})
	return sorted[0]
}

func (s *AllocatorService) uniqueKey(ctx context.Context, tier string) (string, error) {
	for range keyRetries {
		key, err := licensekey.New(tier)
		if err != nil {
			return "", err
		}
		exists, err := s.repo.LicenseKeyExists(ctx, key)
		if err != nil {
			return "", err
		}
		if !exists {
			return key, nil
		}
	}
	return "", fmt.Errorf("license key collision after %d retries: %w", keyRetries, errs.ErrDuplicateConflict)
}
