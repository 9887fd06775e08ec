package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/licensing-reconciler/internal/errs"
	"github.com/magabrotheeeer/licensing-reconciler/internal/models"
)

// CreatePayment вставляет новый платёж и возвращает его UID.
func (s *Storage) CreatePayment(ctx context.Context, p models.Payment) (string, error) {
	const op = "storage.CreatePayment"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO payments (user_uid, subscription_uid, invoice_uid, amount,
			      currency, status, user_email, user_name)
			  VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8)
			  RETURNING uid`
	var newUID string
	err := s.DB.QueryRowContext(ctx, query,
		p.UserUID, p.SubscriptionUID, p.InvoiceUID, p.Amount, p.Currency, p.Status,
		p.UserEmail, p.UserName).Scan(&newUID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return newUID, nil
}

// ListPayments возвращает список всех платежей с пагинацией.
func (s *Storage) ListPayments(ctx context.Context, limit, offset int) ([]*models.Payment, error) {
	const op = "storage.ListPayments"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT uid, user_uid, subscription_uid, invoice_uid, amount, currency,
			      status, user_email, user_name, created_at, updated_at
			  FROM payments
			  ORDER BY created_at
			  LIMIT $1 OFFSET $2`
	rows, err := s.DB.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// SumPayments суммирует платежи с заданным статусом.
func (s *Storage) SumPayments(ctx context.Context, status string) (int64, error) {
	const op = "storage.SumPayments"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT COALESCE(SUM(amount), 0) FROM payments WHERE status = $1`
	var total int64
	if err := s.DB.QueryRowContext(ctx, query, status).Scan(&total); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return total, nil
}

// HasPaymentForSubscription проверяет, есть ли у подписки хотя бы один платёж.
func (s *Storage) HasPaymentForSubscription(ctx context.Context, subUID string) (bool, error) {
	const op = "storage.HasPaymentForSubscription"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT EXISTS (SELECT 1 FROM payments WHERE subscription_uid = $1)`
	var exists bool
	if err := s.DB.QueryRowContext(ctx, query, subUID).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

// GetPaymentByInvoice возвращает платёж, привязанный к счёту.
func (s *Storage) GetPaymentByInvoice(ctx context.Context, invoiceUID string) (*models.Payment, error) {
	const op = "storage.GetPaymentByInvoice"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT uid, user_uid, subscription_uid, invoice_uid, amount, currency,
			      status, user_email, user_name, created_at, updated_at
			  FROM payments
			  WHERE invoice_uid = $1
			  ORDER BY created_at
			  LIMIT 1`
	row := s.DB.QueryRowContext(ctx, query, invoiceUID)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, errs.NotFound("payments", invoiceUID))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// UpdatePaymentUserInfo перезаписывает денормализованные email и имя
// пользователя в платеже. Реестр пользователей всегда выигрывает.
func (s *Storage) UpdatePaymentUserInfo(ctx context.Context, paymentUID, email, name string) (int, error) {
	const op = "storage.UpdatePaymentUserInfo"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE payments
			  SET user_email = $1, user_name = $2, updated_at = NOW()
			  WHERE uid = $3
			    AND (user_email <> $1 OR user_name <> $2)`
	result, err := s.DB.ExecContext(ctx, query, email, name, paymentUID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// DeletePayment удаляет платёж и возвращает количество удалённых строк.
// Используется только деструктивным режимом аудитора для осиротевших записей.
func (s *Storage) DeletePayment(ctx context.Context, paymentUID string) (int, error) {
	const op = "storage.DeletePayment"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `DELETE FROM payments WHERE uid = $1`
	result, err := s.DB.ExecContext(ctx, query, paymentUID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// HasInvoicePaymentLink проверяет наличие связи счёт-платёж для счёта.
func (s *Storage) HasInvoicePaymentLink(ctx context.Context, invoiceUID string) (bool, error) {
	const op = "storage.HasInvoicePaymentLink"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT EXISTS (SELECT 1 FROM invoice_payments WHERE invoice_uid = $1)`
	var exists bool
	if err := s.DB.QueryRowContext(ctx, query, invoiceUID).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

// CreateInvoicePaymentLink сохраняет связь счёт-платёж и возвращает её UID.
func (s *Storage) CreateInvoicePaymentLink(ctx context.Context, link models.InvoicePayment) (string, error) {
	const op = "storage.CreateInvoicePaymentLink"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO invoice_payments (invoice_uid, payment_uid, amount, currency)
			  VALUES ($1, $2, $3, $4)
			  RETURNING uid`
	var newUID string
	err := s.DB.QueryRowContext(ctx, query,
		link.InvoiceUID, link.PaymentUID, link.Amount, link.Currency).Scan(&newUID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return newUID, nil
}

func scanPayment(sc rowScanner) (*models.Payment, error) {
	var p models.Payment
	var invoiceUID sql.NullString
	if err := sc.Scan(&p.UID, &p.UserUID, &p.SubscriptionUID, &invoiceUID, &p.Amount,
		&p.Currency, &p.Status, &p.UserEmail, &p.UserName,
		&p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if invoiceUID.Valid {
		p.InvoiceUID = invoiceUID.String
	}
	return &p, nil
}
