// Package services содержит бизнес-логику сверки платёжных записей:
// создание счетов по снимку подписки, зеркальных платежей и
// восстановление связей счёт-платёж для успешных счетов.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/licensing-reconciler/internal/errs"
	"github.com/magabrotheeeer/licensing-reconciler/internal/lib/batch"
	"github.com/magabrotheeeer/licensing-reconciler/internal/lib/sl"
	"github.com/magabrotheeeer/licensing-reconciler/internal/models"
)

// Месяцев в годовом расчётном периоде.
const monthsPerYear = 12

// BillingRepository определяет методы для работы с платёжными записями.
type BillingRepository interface {
	GetSubscription(ctx context.Context, subUID string) (*models.Subscription, error)
	GetUser(ctx context.Context, userUID string) (*models.User, error)
	CreateInvoice(ctx context.Context, inv models.Invoice) (string, error)
	ListInvoices(ctx context.Context, limit, offset int) ([]*models.Invoice, error)
	CreatePayment(ctx context.Context, p models.Payment) (string, error)
	GetPaymentByInvoice(ctx context.Context, invoiceUID string) (*models.Payment, error)
	HasInvoicePaymentLink(ctx context.Context, invoiceUID string) (bool, error)
	CreateInvoicePaymentLink(ctx context.Context, link models.InvoicePayment) (string, error)
}

// ReconcilerService реализует создание и сверку платёжных записей.
type ReconcilerService struct {
	repo   BillingRepository
	log    *slog.Logger
	pager  *batch.Pager
	dryRun bool
}

// NewReconcilerService создает новый экземпляр ReconcilerService.
func NewReconcilerService(repo BillingRepository, log *slog.Logger, pager *batch.Pager, dryRun bool) *ReconcilerService {
	return &ReconcilerService{
		repo:   repo,
		log:    log,
		pager:  pager,
		dryRun: dryRun,
	}
}

// CreateInvoice выписывает успешный счёт по текущему снимку подписки.
// Сумма — цена за место, умноженная на количество мест и, для годового
// цикла, на двенадцать месяцев. Границы периода копируются из подписки.
func (s *ReconcilerService) CreateInvoice(ctx context.Context, subUID string) (*models.Invoice, error) {
	const op = "billing.CreateInvoice"

	sub, err := s.repo.GetSubscription(ctx, subUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	inv := models.Invoice{
		UserUID:         sub.UserUID,
		SubscriptionUID: sub.UID,
		Amount:          InvoiceAmount(sub),
		Currency:        models.DefaultCurrency,
		Status:          models.BillingStatusSucceeded,
		PeriodStart:     sub.CurrentPeriodStart,
		PeriodEnd:       sub.CurrentPeriodEnd,
	}
	if s.dryRun {
		s.log.Info("dry-run: would create invoice",
			slog.String("sub_uid", subUID), slog.Int64("amount", inv.Amount))
		return &inv, nil
	}
	uid, err := s.repo.CreateInvoice(ctx, inv)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	inv.UID = uid
	return &inv, nil
}

// CreateMatchingPayment создаёт платёж, зеркалирующий счёт: сумма,
// валюта и статус копируются, email и имя пользователя денормализуются
// из реестра пользователей на момент создания.
func (s *ReconcilerService) CreateMatchingPayment(ctx context.Context, inv *models.Invoice) (*models.Payment, error) {
	const op = "billing.CreateMatchingPayment"

	user, err := s.repo.GetUser(ctx, inv.UserUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	p := models.Payment{
		UserUID:         inv.UserUID,
		SubscriptionUID: inv.SubscriptionUID,
		InvoiceUID:      inv.UID,
		Amount:          inv.Amount,
		Currency:        inv.Currency,
		Status:          inv.Status,
		UserEmail:       user.Email,
		UserName:        user.DisplayName,
	}
	if s.dryRun {
		s.log.Info("dry-run: would create payment", slog.String("invoice_uid", inv.UID))
		return &p, nil
	}
	uid, err := s.repo.CreatePayment(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	p.UID = uid
	return &p, nil
}

// EnsureInvoicePaymentLink восстанавливает связь счёт-платёж для
// успешного счёта. Существующая связь не трогается, счёт без платежа
// пропускается с предупреждением. Сумма и валюта связи копируются из
// счёта.
func (s *ReconcilerService) EnsureInvoicePaymentLink(ctx context.Context, inv *models.Invoice) (created bool, err error) {
	const op = "billing.EnsureInvoicePaymentLink"

	exists, err := s.repo.HasInvoicePaymentLink(ctx, inv.UID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if exists {
		return false, nil
	}

	p, err := s.repo.GetPaymentByInvoice(ctx, inv.UID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			s.log.Warn("invoice has no payment, link skipped", slog.String("invoice_uid", inv.UID))
			return false, nil
		}
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if s.dryRun {
		s.log.Info("dry-run: would create invoice-payment link",
			slog.String("invoice_uid", inv.UID), slog.String("payment_uid", p.UID))
		return true, nil
	}
	_, err = s.repo.CreateInvoicePaymentLink(ctx, models.InvoicePayment{
		InvoiceUID: inv.UID,
		PaymentUID: p.UID,
		Amount:     inv.Amount,
		Currency:   inv.Currency,
	})
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

// ReconcileInvoiceLinks проходит все счета постранично и
// восстанавливает отсутствующие связи счёт-платёж для успешных.
// Ошибка по одному счёту логируется и не прерывает проход.
func (s *ReconcilerService) ReconcileInvoiceLinks(ctx context.Context) (models.Summary, error) {
	const op = "billing.ReconcileInvoiceLinks"
	var summary models.Summary

	err := s.pager.Run(ctx, func(ctx context.Context, limit, offset int) (int, error) {
		invoices, err := s.repo.ListInvoices(ctx, limit, offset)
		if err != nil {
			return 0, err
		}
		for _, inv := range invoices {
			if inv.Status != models.BillingStatusSucceeded {
				summary.Skipped++
				continue
			}
			created, err := s.EnsureInvoicePaymentLink(ctx, inv)
			switch {
			case err != nil:
				s.log.Error("failed to ensure invoice-payment link",
					slog.String("invoice_uid", inv.UID), sl.Err(err))
				summary.Errored++
			case created:
				summary.Created++
			default:
				summary.Skipped++
			}
		}
		return len(invoices), nil
	})
	if err != nil {
		return summary, fmt.Errorf("%s: %w", op, err)
	}
	return summary, nil
}

// InvoiceAmount вычисляет сумму счёта по снимку подписки в центах.
func InvoiceAmount(sub *models.Subscription) int64 {
	amount := sub.PricePerSeat * int64(sub.Seats)
	if sub.BillingCycle == models.BillingCycleAnnual {
		amount *= monthsPerYear
	}
	return amount
}
