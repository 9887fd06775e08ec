package repository

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/licensing-reconciler/internal/models"
)

// CreateInvoice вставляет новый счёт и возвращает его UID.
func (s *Storage) CreateInvoice(ctx context.Context, inv models.Invoice) (string, error) {
	const op = "storage.CreateInvoice"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO invoices (user_uid, subscription_uid, amount, currency, status,
			      tax_region, period_start, period_end)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			  RETURNING uid`
	var newUID string
	err := s.DB.QueryRowContext(ctx, query,
		inv.UserUID, inv.SubscriptionUID, inv.Amount, inv.Currency, inv.Status,
		inv.TaxRegion, inv.PeriodStart, inv.PeriodEnd).Scan(&newUID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return newUID, nil
}

// ListInvoices возвращает список всех счетов с пагинацией.
func (s *Storage) ListInvoices(ctx context.Context, limit, offset int) ([]*models.Invoice, error) {
	const op = "storage.ListInvoices"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT uid, user_uid, subscription_uid, amount, currency, status,
			      tax_region, period_start, period_end, created_at, updated_at
			  FROM invoices
			  ORDER BY created_at
			  LIMIT $1 OFFSET $2`
	rows, err := s.DB.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Invoice
	for rows.Next() {
		var inv models.Invoice
		if err := rows.Scan(&inv.UID, &inv.UserUID, &inv.SubscriptionUID, &inv.Amount,
			&inv.Currency, &inv.Status, &inv.TaxRegion,
			&inv.PeriodStart, &inv.PeriodEnd, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &inv)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// SumInvoices суммирует счета с заданным статусом.
func (s *Storage) SumInvoices(ctx context.Context, status string) (int64, error) {
	const op = "storage.SumInvoices"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT COALESCE(SUM(amount), 0) FROM invoices WHERE status = $1`
	var total int64
	if err := s.DB.QueryRowContext(ctx, query, status).Scan(&total); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return total, nil
}

// HasInvoiceForSubscription проверяет, есть ли у подписки хотя бы один счёт.
func (s *Storage) HasInvoiceForSubscription(ctx context.Context, subUID string) (bool, error) {
	const op = "storage.HasInvoiceForSubscription"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT EXISTS (SELECT 1 FROM invoices WHERE subscription_uid = $1)`
	var exists bool
	if err := s.DB.QueryRowContext(ctx, query, subUID).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

// DeleteInvoice удаляет счёт и возвращает количество удалённых строк.
// Используется только деструктивным режимом аудитора для осиротевших записей.
func (s *Storage) DeleteInvoice(ctx context.Context, invoiceUID string) (int, error) {
	const op = "storage.DeleteInvoice"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `DELETE FROM invoices WHERE uid = $1`
	result, err := s.DB.ExecContext(ctx, query, invoiceUID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}
