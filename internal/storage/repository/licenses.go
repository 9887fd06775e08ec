package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/magabrotheeeer/licensing-reconciler/internal/models"
)

// CreateLicense вставляет новую лицензию и возвращает её UID.
func (s *Storage) CreateLicense(ctx context.Context, lic models.License) (string, error) {
	const op = "storage.CreateLicense"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var activatedAt, expiresAt sql.NullTime
	if lic.ActivatedAt != nil {
		activatedAt = sql.NullTime{Time: *lic.ActivatedAt, Valid: true}
	}
	if lic.ExpiresAt != nil {
		expiresAt = sql.NullTime{Time: *lic.ExpiresAt, Valid: true}
	}

	query := `INSERT INTO licenses (user_uid, subscription_uid, license_key, tier, status,
			      activated_at, expires_at, activation_count, max_activations)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			  RETURNING uid`
	var newUID string
	err := s.DB.QueryRowContext(ctx, query,
		lic.UserUID, lic.SubscriptionUID, lic.Key, lic.Tier, lic.Status,
		activatedAt, expiresAt, lic.ActivationCount, lic.MaxActivations).Scan(&newUID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return newUID, nil
}

// LicenseKeyExists проверяет, занят ли ключ лицензии во всём хранилище.
func (s *Storage) LicenseKeyExists(ctx context.Context, key string) (bool, error) {
	const op = "storage.LicenseKeyExists"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT EXISTS (SELECT 1 FROM licenses WHERE license_key = $1)`
	var exists bool
	if err := s.DB.QueryRowContext(ctx, query, key).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

// ListLicensesByUser возвращает все лицензии пользователя.
func (s *Storage) ListLicensesByUser(ctx context.Context, userUID string) ([]*models.License, error) {
	const op = "storage.ListLicensesByUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT uid, user_uid, subscription_uid, license_key, tier, status,
			      activated_at, expires_at, activation_count, max_activations,
			      created_at, updated_at
			  FROM licenses
			  WHERE user_uid = $1
			  ORDER BY created_at`
	return s.queryLicenses(ctx, op, query, userUID)
}

// ListLicenses возвращает список всех лицензий с пагинацией.
func (s *Storage) ListLicenses(ctx context.Context, limit, offset int) ([]*models.License, error) {
	const op = "storage.ListLicenses"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT uid, user_uid, subscription_uid, license_key, tier, status,
			      activated_at, expires_at, activation_count, max_activations,
			      created_at, updated_at
			  FROM licenses
			  ORDER BY created_at
			  LIMIT $1 OFFSET $2`
	return s.queryLicenses(ctx, op, query, limit, offset)
}

// UpdateLicenseStatus обновляет статус лицензии и возвращает
// количество изменённых строк. Статус, равный текущему, не перезаписывается,
// чтобы повторный прогон нормализации не порождал лишних записей.
func (s *Storage) UpdateLicenseStatus(ctx context.Context, licenseUID, status string) (int, error) {
	const op = "storage.UpdateLicenseStatus"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE licenses
			  SET status = $1, updated_at = NOW()
			  WHERE uid = $2 AND status <> $1`
	result, err := s.DB.ExecContext(ctx, query, status, licenseUID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// MakeLicenseKeeper делает лицензию хранителем: статус ACTIVE и новая
// дата истечения. Запись, уже находящаяся в этом состоянии, не трогается.
func (s *Storage) MakeLicenseKeeper(ctx context.Context, licenseUID string, expiresAt time.Time) (int, error) {
	const op = "storage.MakeLicenseKeeper"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE licenses
			  SET status = $1, expires_at = $2, updated_at = NOW()
			  WHERE uid = $3
			    AND (status <> $1 OR expires_at IS DISTINCT FROM $2)`
	result, err := s.DB.ExecContext(ctx, query, models.LicenseStatusActive, expiresAt, licenseUID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// CountNonRevokedLicenses считает неотозванные лицензии подписки.
// Используется проверкой лимита мест.
func (s *Storage) CountNonRevokedLicenses(ctx context.Context, subUID string) (int, error) {
	const op = "storage.CountNonRevokedLicenses"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT COUNT(*) FROM licenses
			  WHERE subscription_uid = $1 AND status <> $2`
	var count int
	if err := s.DB.QueryRowContext(ctx, query, subUID, models.LicenseStatusRevoked).Scan(&count); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}

// HasLicenseForSubscription проверяет, есть ли у подписки хотя бы одна лицензия.
func (s *Storage) HasLicenseForSubscription(ctx context.Context, subUID string) (bool, error) {
	const op = "storage.HasLicenseForSubscription"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT EXISTS (SELECT 1 FROM licenses WHERE subscription_uid = $1)`
	var exists bool
	if err := s.DB.QueryRowContext(ctx, query, subUID).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

// DeleteLicense удаляет лицензию и возвращает количество удалённых строк.
// Используется только деструктивным режимом аудитора для осиротевших записей:
// обычный путь никогда не удаляет лицензии, а отзывает их.
func (s *Storage) DeleteLicense(ctx context.Context, licenseUID string) (int, error) {
	const op = "storage.DeleteLicense"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `DELETE FROM licenses WHERE uid = $1`
	result, err := s.DB.ExecContext(ctx, query, licenseUID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

func (s *Storage) queryLicenses(ctx context.Context, op, query string, args ...any) ([]*models.License, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.License
	for rows.Next() {
		var lic models.License
		var activatedAt, expiresAt sql.NullTime
		if err := rows.Scan(&lic.UID, &lic.UserUID, &lic.SubscriptionUID, &lic.Key,
			&lic.Tier, &lic.Status, &activatedAt, &expiresAt,
			&lic.ActivationCount, &lic.MaxActivations,
			&lic.CreatedAt, &lic.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if activatedAt.Valid {
			lic.ActivatedAt = &activatedAt.Time
		}
		if expiresAt.Valid {
			lic.ExpiresAt = &expiresAt.Time
		}
		result = append(result, &lic)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
