// Package services содержит аудитор целостности хранилища. Аудитор
// выполняет пять проверок в фиксированном порядке: осиротевшие записи,
// дубликаты активных подписок, отсутствующие связанные записи, дрейф
// денормализованных данных платежей и сквозная сверка выручки.
// Порядок важен: каждая проверка опирается на результат предыдущей.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/licensing-reconciler/internal/errs"
	"github.com/magabrotheeeer/licensing-reconciler/internal/lib/batch"
	rabbitmqlib "github.com/magabrotheeeer/licensing-reconciler/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/licensing-reconciler/internal/lib/sl"
	"github.com/magabrotheeeer/licensing-reconciler/internal/models"
	"github.com/magabrotheeeer/licensing-reconciler/internal/rabbitmq"
)

// Срок действия лицензии, созданной аудитором взамен отсутствующей.
const repairLicenseValidityMonths = 12

// AuditRepository определяет методы хранилища, нужные аудитору.
type AuditRepository interface {
	UserExists(ctx context.Context, userUID string) (bool, error)
	GetUser(ctx context.Context, userUID string) (*models.User, error)
	OrganizationExists(ctx context.Context, orgUID string) (bool, error)

	ListSubscriptions(ctx context.Context, limit, offset int) ([]*models.Subscription, error)
	UpdateSubscriptionStatus(ctx context.Context, subUID, status string) (int, error)
	DeleteSubscription(ctx context.Context, subUID string) (int, error)

	ListLicenses(ctx context.Context, limit, offset int) ([]*models.License, error)
	HasLicenseForSubscription(ctx context.Context, subUID string) (bool, error)
	CountNonRevokedLicenses(ctx context.Context, subUID string) (int, error)
	DeleteLicense(ctx context.Context, licenseUID string) (int, error)

	ListInvoices(ctx context.Context, limit, offset int) ([]*models.Invoice, error)
	HasInvoiceForSubscription(ctx context.Context, subUID string) (bool, error)
	SumInvoices(ctx context.Context, status string) (int64, error)
	DeleteInvoice(ctx context.Context, invoiceUID string) (int, error)

	ListPayments(ctx context.Context, limit, offset int) ([]*models.Payment, error)
	HasPaymentForSubscription(ctx context.Context, subUID string) (bool, error)
	SumPayments(ctx context.Context, status string) (int64, error)
	UpdatePaymentUserInfo(ctx context.Context, paymentUID, email, name string) (int, error)
	DeletePayment(ctx context.Context, paymentUID string) (int, error)

	ListMembers(ctx context.Context, limit, offset int) ([]*models.OrgMember, error)
	DeleteMember(ctx context.Context, memberUID string) (int, error)
}

// LicenseAllocator выдаёт лицензии взамен отсутствующих у активных подписок.
type LicenseAllocator interface {
	GenerateLicenses(ctx context.Context, userUID, subUID, tier string, count int, status string, validityMonths int) ([]string, error)
}

// AuditorService реализует полный проход проверок целостности.
type AuditorService struct {
	repo        AuditRepository
	allocator   LicenseAllocator
	log         *slog.Logger
	pager       *batch.Pager
	channel     *amqp.Channel
	dryRun      bool
	destructive bool
}

// NewAuditorService создает новый экземпляр AuditorService.
// channel может быть nil, тогда отчёт не публикуется в брокер.
// В режиме destructive осиротевшие записи удаляются, иначе только
// попадают в отчёт. dryRun подавляет любые записи.
func NewAuditorService(repo AuditRepository, allocator LicenseAllocator, log *slog.Logger,
	pager *batch.Pager, channel *amqp.Channel, dryRun, destructive bool) *AuditorService {
	return &AuditorService{
		repo:        repo,
		allocator:   allocator,
		log:         log,
		pager:       pager,
		channel:     channel,
		dryRun:      dryRun,
		destructive: destructive,
	}
}

// Run выполняет все проверки и возвращает отчёт. Ошибка по одной записи
// логируется и учитывается в итогах, не прерывая проход. Отчёт
// публикуется в брокер, если канал настроен.
func (s *AuditorService) Run(ctx context.Context) (*models.AuditReport, error) {
	const op = "auditor.Run"

	report := &models.AuditReport{
		StartedAt:   time.Now(),
		DryRun:      s.dryRun,
		Destructive: s.destructive,
		Findings:    []models.Finding{},
	}

	checks := []struct {
		name string
		run  func(ctx context.Context, report *models.AuditReport) error
	}{
		{models.CheckOrphans, s.checkOrphans},
		{models.CheckDuplicates, s.checkDuplicates},
		{models.CheckLinks, s.checkLinks},
		{models.CheckDrift, s.checkDrift},
		{models.CheckRevenue, s.checkRevenue},
	}
	for _, check := range checks {
		s.log.Info("running audit check", slog.String("check", check.name))
		if err := check.run(ctx, report); err != nil {
			return report, fmt.Errorf("%s: %s: %w", op, check.name, err)
		}
	}
	report.FinishedAt = time.Now()

	if s.channel != nil && len(report.Findings) > 0 {
		if err := rabbitmqlib.PublishReport(s.channel, rabbitmq.AuditExchange,
			rabbitmq.AuditRoutingKey, report); err != nil {
			s.log.Error("failed to publish audit report", sl.Err(err))
		}
	}
	s.log.Info("audit completed",
		slog.Int("findings", len(report.Findings)),
		slog.Int("updated", report.Summary.Updated),
		slog.Int("errored", report.Summary.Errored))
	return report, nil
}

// checkOrphans ищет записи, ссылающиеся на несуществующих пользователей
// или организации. В деструктивном режиме осиротевшие записи удаляются,
// иначе только фиксируются в отчёте.
func (s *AuditorService) checkOrphans(ctx context.Context, report *models.AuditReport) error {
	userSeen := make(map[string]bool)
	userOK := func(ctx context.Context, userUID string) (bool, error) {
		if ok, seen := userSeen[userUID]; seen {
			return ok, nil
		}
		ok, err := s.repo.UserExists(ctx, userUID)
		if err != nil {
			return false, err
		}
		userSeen[userUID] = ok
		return ok, nil
	}
	orgSeen := make(map[string]bool)
	orgOK := func(ctx context.Context, orgUID string) (bool, error) {
		if ok, seen := orgSeen[orgUID]; seen {
			return ok, nil
		}
		ok, err := s.repo.OrganizationExists(ctx, orgUID)
		if err != nil {
			return false, err
		}
		orgSeen[orgUID] = ok
		return ok, nil
	}

	scan := func(collection string, list func(ctx context.Context, limit, offset int) ([]orphanCandidate, error),
		remove func(ctx context.Context, uid string) (int, error)) error {
		var orphans []orphanCandidate
		err := s.pager.Run(ctx, func(ctx context.Context, limit, offset int) (int, error) {
			rows, err := list(ctx, limit, offset)
			if err != nil {
				return 0, err
			}
			for _, row := range rows {
				var ok bool
				var err error
				if row.orgUID != "" {
					ok, err = orgOK(ctx, row.orgUID)
				} else {
					ok, err = userOK(ctx, row.userUID)
				}
				if err != nil {
					s.log.Error("orphan check failed", slog.String("uid", row.uid), sl.Err(err))
					report.Summary.Errored++
					continue
				}
				if !ok {
					orphans = append(orphans, row)
				}
			}
			return len(rows), nil
		})
		if err != nil {
			return err
		}

		// Удаление отложено до конца прохода: удаление во время
		// постраничного чтения сдвигает смещение и пропускает записи.
		for _, row := range orphans {
			finding := models.Finding{
				Check:      models.CheckOrphans,
				Collection: collection,
				UID:        row.uid,
				Detail:     row.detail,
			}
			if s.destructive {
				if s.dryRun {
					s.log.Info("dry-run: would delete orphan",
						slog.String("collection", collection), slog.String("uid", row.uid))
					finding.Repaired = true
					report.Summary.Updated++
				} else if _, err := remove(ctx, row.uid); err != nil {
					s.log.Error("failed to delete orphan",
						slog.String("collection", collection), slog.String("uid", row.uid), sl.Err(err))
					report.Summary.Errored++
				} else {
					finding.Repaired = true
					report.Summary.Updated++
				}
			}
			report.Findings = append(report.Findings, finding)
		}
		return nil
	}

	if err := scan("subscriptions", func(ctx context.Context, limit, offset int) ([]orphanCandidate, error) {
		subs, err := s.repo.ListSubscriptions(ctx, limit, offset)
		if err != nil {
			return nil, err
		}
		out := make([]orphanCandidate, 0, len(subs))
		for _, sub := range subs {
			out = append(out, orphanCandidate{
				uid:     sub.UID,
				userUID: sub.UserUID,
				detail:  fmt.Sprintf("subscription references missing user %s", sub.UserUID),
			})
		}
		return out, nil
	}, s.repo.DeleteSubscription); err != nil {
		return err
	}

	if err := scan("licenses", func(ctx context.Context, limit, offset int) ([]orphanCandidate, error) {
		licenses, err := s.repo.ListLicenses(ctx, limit, offset)
		if err != nil {
			return nil, err
		}
		out := make([]orphanCandidate, 0, len(licenses))
		for _, lic := range licenses {
			out = append(out, orphanCandidate{
				uid:     lic.UID,
				userUID: lic.UserUID,
				detail:  fmt.Sprintf("license references missing user %s", lic.UserUID),
			})
		}
		return out, nil
	}, s.repo.DeleteLicense); err != nil {
		return err
	}

	if err := scan("invoices", func(ctx context.Context, limit, offset int) ([]orphanCandidate, error) {
		invoices, err := s.repo.ListInvoices(ctx, limit, offset)
		if err != nil {
			return nil, err
		}
		out := make([]orphanCandidate, 0, len(invoices))
		for _, inv := range invoices {
			out = append(out, orphanCandidate{
				uid:     inv.UID,
				userUID: inv.UserUID,
				detail:  fmt.Sprintf("invoice references missing user %s", inv.UserUID),
			})
		}
		return out, nil
	}, s.repo.DeleteInvoice); err != nil {
		return err
	}

	if err := scan("payments", func(ctx context.Context, limit, offset int) ([]orphanCandidate, error) {
		payments, err := s.repo.ListPayments(ctx, limit, offset)
		if err != nil {
			return nil, err
		}
		out := make([]orphanCandidate, 0, len(payments))
		for _, p := range payments {
			out = append(out, orphanCandidate{
				uid:     p.UID,
				userUID: p.UserUID,
				detail:  fmt.Sprintf("payment references missing user %s", p.UserUID),
			})
		}
		return out, nil
	}, s.repo.DeletePayment); err != nil {
		return err
	}

	return scan("org_members", func(ctx context.Context, limit, offset int) ([]orphanCandidate, error) {
		members, err := s.repo.ListMembers(ctx, limit, offset)
		if err != nil {
			return nil, err
		}
		out := make([]orphanCandidate, 0, len(members))
		for _, m := range members {
			out = append(out, orphanCandidate{
				uid:    m.UID,
				orgUID: m.OrgUID,
				detail: fmt.Sprintf("member references missing organization %s", m.OrgUID),
			})
		}
		return out, nil
	}, s.repo.DeleteMember)
}

// orphanCandidate — запись, проверяемая на осиротение. Заполнено либо
// userUID, либо orgUID, в зависимости от коллекции.
type orphanCandidate struct {
	uid     string
	userUID string
	orgUID  string
	detail  string
}

// checkDuplicates сворачивает дубликаты активных подписок: у
// пользователя остаётся одна активная подписка — самая свежая по дате
// изменения, остальные отменяются. Отмена идемпотентна, записи не удаляются.
func (s *AuditorService) checkDuplicates(ctx context.Context, report *models.AuditReport) error {
	activeByUser := make(map[string][]*models.Subscription)
	err := s.pager.Run(ctx, func(ctx context.Context, limit, offset int) (int, error) {
		subs, err := s.repo.ListSubscriptions(ctx, limit, offset)
		if err != nil {
			return 0, err
		}
		for _, sub := range subs {
			if sub.Status == models.SubscriptionStatusActive {
				activeByUser[sub.UserUID] = append(activeByUser[sub.UserUID], sub)
			}
		}
		return len(subs), nil
	})
	if err != nil {
		return err
	}

	for userUID, subs := range activeByUser {
		if len(subs) < 2 {
			continue
		}
		sort.Slice(subs, func(i, j int) bool {
			if !subs[i].UpdatedAt.Equal(subs[j].UpdatedAt) {
				return subs[i].UpdatedAt.After(subs[j].UpdatedAt)
			}
			return subs[i].UID < subs[j].UID
		})
		for _, sub := range subs[1:] {
			finding := models.Finding{
				Check:      models.CheckDuplicates,
				Collection: "subscriptions",
				UID:        sub.UID,
				Detail:     fmt.Sprintf("duplicate active subscription for user %s, keeping %s", userUID, subs[0].UID),
			}
			if s.dryRun {
				s.log.Info("dry-run: would cancel duplicate subscription", slog.String("uid", sub.UID))
				finding.Repaired = true
				report.Summary.Updated++
			} else if _, err := s.repo.UpdateSubscriptionStatus(ctx, sub.UID, models.SubscriptionStatusCancelled); err != nil {
				s.log.Error("failed to cancel duplicate subscription", slog.String("uid", sub.UID), sl.Err(err))
				report.Summary.Errored++
			} else {
				finding.Repaired = true
				report.Summary.Updated++
			}
			report.Findings = append(report.Findings, finding)
		}
	}
	return nil
}

// checkLinks проверяет, что у каждой активной подписки есть лицензия,
// счёт и платёж. Отсутствующая лицензия восстанавливается через
// аллокатор, отсутствие счёта или платежа только фиксируется — суммы
// задним числом не выдумываются. Сюда же попадает проверка превышения
// числа мест неотозванными лицензиями.
func (s *AuditorService) checkLinks(ctx context.Context, report *models.AuditReport) error {
	return s.pager.Run(ctx, func(ctx context.Context, limit, offset int) (int, error) {
		subs, err := s.repo.ListSubscriptions(ctx, limit, offset)
		if err != nil {
			return 0, err
		}
		for _, sub := range subs {
			if sub.Status != models.SubscriptionStatusActive {
				continue
			}
			if err := s.ensureLicenseLink(ctx, report, sub); err != nil {
				s.log.Error("license link check failed", slog.String("sub_uid", sub.UID), sl.Err(err))
				report.Summary.Errored++
			}
			if err := s.reportMissingBilling(ctx, report, sub); err != nil {
				s.log.Error("billing link check failed", slog.String("sub_uid", sub.UID), sl.Err(err))
				report.Summary.Errored++
			}
			if err := s.reportSeatOverflow(ctx, report, sub); err != nil {
				s.log.Error("seat limit check failed", slog.String("sub_uid", sub.UID), sl.Err(err))
				report.Summary.Errored++
			}
		}
		return len(subs), nil
	})
}

func (s *AuditorService) ensureLicenseLink(ctx context.Context, report *models.AuditReport, sub *models.Subscription) error {
	has, err := s.repo.HasLicenseForSubscription(ctx, sub.UID)
	if err != nil || has {
		return err
	}
	finding := models.Finding{
		Check:      models.CheckLinks,
		Collection: "licenses",
		UID:        sub.UID,
		Detail:     "active subscription has no license",
	}
	if s.dryRun {
		s.log.Info("dry-run: would generate license", slog.String("sub_uid", sub.UID))
		finding.Repaired = true
		report.Summary.Created++
	} else if _, err := s.allocator.GenerateLicenses(ctx, sub.UserUID, sub.UID, sub.Tier,
		1, models.LicenseStatusActive, repairLicenseValidityMonths); err != nil {
		report.Findings = append(report.Findings, finding)
		return err
	} else {
		finding.Repaired = true
		report.Summary.Created++
	}
	report.Findings = append(report.Findings, finding)
	return nil
}

func (s *AuditorService) reportMissingBilling(ctx context.Context, report *models.AuditReport, sub *models.Subscription) error {
	hasInvoice, err := s.repo.HasInvoiceForSubscription(ctx, sub.UID)
	if err != nil {
		return err
	}
	if !hasInvoice {
		report.Findings = append(report.Findings, models.Finding{
			Check:      models.CheckLinks,
			Collection: "invoices",
			UID:        sub.UID,
			Detail:     "active subscription has no invoice",
		})
	}
	hasPayment, err := s.repo.HasPaymentForSubscription(ctx, sub.UID)
	if err != nil {
		return err
	}
	if !hasPayment {
		report.Findings = append(report.Findings, models.Finding{
			Check:      models.CheckLinks,
			Collection: "payments",
			UID:        sub.UID,
			Detail:     "active subscription has no payment",
		})
	}
	return nil
}

func (s *AuditorService) reportSeatOverflow(ctx context.Context, report *models.AuditReport, sub *models.Subscription) error {
	count, err := s.repo.CountNonRevokedLicenses(ctx, sub.UID)
	if err != nil {
		return err
	}
	if count > sub.Seats {
		report.Findings = append(report.Findings, models.Finding{
			Check:      models.CheckSeats,
			Collection: "licenses",
			UID:        sub.UID,
			Detail:     fmt.Sprintf("%d non-revoked licenses exceed %d seats", count, sub.Seats),
		})
	}
	return nil
}

// checkDrift пересинхронизирует денормализованные email и имя
// пользователя в платежах. Реестр пользователей всегда выигрывает.
func (s *AuditorService) checkDrift(ctx context.Context, report *models.AuditReport) error {
	users := make(map[string]*models.User)
	return s.pager.Run(ctx, func(ctx context.Context, limit, offset int) (int, error) {
		payments, err := s.repo.ListPayments(ctx, limit, offset)
		if err != nil {
			return 0, err
		}
		for _, p := range payments {
			user, cached := users[p.UserUID]
			if !cached {
				user, err = s.repo.GetUser(ctx, p.UserUID)
				if errors.Is(err, errs.ErrNotFound) {
					// Осиротевшие платежи обрабатывает первая проверка.
					continue
				}
				if err != nil {
					s.log.Error("failed to load user for drift check",
						slog.String("uid", p.UID), sl.Err(err))
					report.Summary.Errored++
					continue
				}
				users[p.UserUID] = user
			}
			if p.UserEmail == user.Email && p.UserName == user.DisplayName {
				continue
			}
			finding := models.Finding{
				Check:      models.CheckDrift,
				Collection: "payments",
				UID:        p.UID,
				Detail: fmt.Sprintf("payment user info %q/%q differs from registry %q/%q",
					p.UserEmail, p.UserName, user.Email, user.DisplayName),
			}
			if s.dryRun {
				s.log.Info("dry-run: would resync payment user info", slog.String("uid", p.UID))
				finding.Repaired = true
				report.Summary.Updated++
			} else if _, err := s.repo.UpdatePaymentUserInfo(ctx, p.UID, user.Email, user.DisplayName); err != nil {
				s.log.Error("failed to resync payment user info", slog.String("uid", p.UID), sl.Err(err))
				report.Summary.Errored++
			} else {
				finding.Repaired = true
				report.Summary.Updated++
			}
			report.Findings = append(report.Findings, finding)
		}
		return len(payments), nil
	})
}

// checkRevenue сверяет сумму успешных счетов с суммой успешных
// платежей. Расхождение только фиксируется: какая из сторон права,
// аудитор не решает.
func (s *AuditorService) checkRevenue(ctx context.Context, report *models.AuditReport) error {
	invoices, err := s.repo.SumInvoices(ctx, models.BillingStatusSucceeded)
	if err != nil {
		return err
	}
	payments, err := s.repo.SumPayments(ctx, models.BillingStatusSucceeded)
	if err != nil {
		return err
	}
	report.RevenueInvoices = invoices
	report.RevenuePayments = payments
	if invoices != payments {
		report.Findings = append(report.Findings, models.Finding{
			Check:      models.CheckRevenue,
			Collection: "invoices",
			Detail: fmt.Sprintf("succeeded invoices total %d does not match payments total %d, diff %d",
				invoices, payments, invoices-payments),
		})
	}
	return nil
}
