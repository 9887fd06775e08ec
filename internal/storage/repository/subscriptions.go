package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/licensing-reconciler/internal/errs"
	"github.com/magabrotheeeer/licensing-reconciler/internal/models"
)

// CreateSubscription вставляет новую запись подписки и возвращает её UID.
func (s *Storage) CreateSubscription(ctx context.Context, sub models.Subscription) (string, error) {
	const op = "storage.CreateSubscription"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO subscriptions (user_uid, org_uid, tier, seats, status,
			      billing_cycle, price_per_seat, current_period_start, current_period_end,
			      cancel_at_period_end)
			  VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10)
			  RETURNING uid`
	var newUID string
	err := s.DB.QueryRowContext(ctx, query,
		sub.UserUID, sub.OrgUID, sub.Tier, sub.Seats, sub.Status, sub.BillingCycle,
		sub.PricePerSeat, sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd).Scan(&newUID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return newUID, nil
}

// GetSubscription возвращает подписку по её UID.
func (s *Storage) GetSubscription(ctx context.Context, subUID string) (*models.Subscription, error) {
	const op = "storage.GetSubscription"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT uid, user_uid, org_uid, tier, seats, status, billing_cycle,
			      price_per_seat, current_period_start, current_period_end,
			      cancel_at_period_end, created_at, updated_at
			  FROM subscriptions
			  WHERE uid = $1`
	row := s.DB.QueryRowContext(ctx, query, subUID)
	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, errs.NotFound("subscriptions", subUID))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// LinkSubscriptionToOrganization проставляет ссылку на организацию,
// если она отсутствует или отличается. Повторный вызов ничего не меняет.
func (s *Storage) LinkSubscriptionToOrganization(ctx context.Context, subUID, orgUID string) (int, error) {
	const op = "storage.LinkSubscriptionToOrganization"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscriptions
			  SET org_uid = $1, updated_at = NOW()
			  WHERE uid = $2
			    AND (org_uid IS DISTINCT FROM $1)`
	result, err := s.DB.ExecContext(ctx, query, orgUID, subUID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// UpdateSubscriptionStatus обновляет статус подписки и возвращает
// количество изменённых строк.
func (s *Storage) UpdateSubscriptionStatus(ctx context.Context, subUID, status string) (int, error) {
	const op = "storage.UpdateSubscriptionStatus"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscriptions
			  SET status = $1, updated_at = NOW()
			  WHERE uid = $2 AND status <> $1`
	result, err := s.DB.ExecContext(ctx, query, status, subUID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// HasActiveSubscription проверяет, есть ли у пользователя активная
// подписка указанного тарифа.
func (s *Storage) HasActiveSubscription(ctx context.Context, userUID, tier string) (bool, error) {
	const op = "storage.HasActiveSubscription"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT EXISTS (
				  SELECT 1 FROM subscriptions
				  WHERE user_uid = $1 AND tier = $2 AND status = $3)`
	var exists bool
	err := s.DB.QueryRowContext(ctx, query, userUID, tier,
		models.SubscriptionStatusActive).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

// ListSubscriptions возвращает список всех подписок с пагинацией.
func (s *Storage) ListSubscriptions(ctx context.Context, limit, offset int) ([]*models.Subscription, error) {
	const op = "storage.ListSubscriptions"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT uid, user_uid, org_uid, tier, seats, status, billing_cycle,
			      price_per_seat, current_period_start, current_period_end,
			      cancel_at_period_end, created_at, updated_at
			  FROM subscriptions
			  ORDER BY created_at
			  LIMIT $1 OFFSET $2`
	return s.querySubscriptions(ctx, op, query, limit, offset)
}

// ListSubscriptionsByUser возвращает все подписки пользователя.
func (s *Storage) ListSubscriptionsByUser(ctx context.Context, userUID string) ([]*models.Subscription, error) {
	const op = "storage.ListSubscriptionsByUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT uid, user_uid, org_uid, tier, seats, status, billing_cycle,
			      price_per_seat, current_period_start, current_period_end,
			      cancel_at_period_end, created_at, updated_at
			  FROM subscriptions
			  WHERE user_uid = $1
			  ORDER BY created_at`
	return s.querySubscriptions(ctx, op, query, userUID)
}

// DeleteSubscription удаляет подписку и возвращает количество удалённых строк.
// Используется только деструктивным режимом аудитора для осиротевших записей.
func (s *Storage) DeleteSubscription(ctx context.Context, subUID string) (int, error) {
	const op = "storage.DeleteSubscription"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `DELETE FROM subscriptions WHERE uid = $1`
	result, err := s.DB.ExecContext(ctx, query, subUID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

func (s *Storage) querySubscriptions(ctx context.Context, op, query string, args ...any) ([]*models.Subscription, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, sub)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

func scanSubscription(sc rowScanner) (*models.Subscription, error) {
	var sub models.Subscription
	var orgUID sql.NullString
	if err := sc.Scan(&sub.UID, &sub.UserUID, &orgUID, &sub.Tier, &sub.Seats,
		&sub.Status, &sub.BillingCycle, &sub.PricePerSeat,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.CancelAtPeriodEnd,
		&sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return nil, err
	}
	if orgUID.Valid {
		sub.OrgUID = orgUID.String
	}
	return &sub, nil
}
