// Package services содержит отправку отчётов аудита бухгалтерии.
// Сервис потребляет отчёты из очереди брокера и пересылает их письмом
// на адрес бухгалтерии.
package services

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/magabrotheeeer/licensing-reconciler/internal/lib/sl"
	"github.com/magabrotheeeer/licensing-reconciler/internal/lib/smtp"
	"github.com/magabrotheeeer/licensing-reconciler/internal/models"
)

// SenderService пересылает отчёты аудита письмом бухгалтерии.
type SenderService struct {
	transport     smtp.TransportInterface
	accountingDst string
	log           *slog.Logger
}

// NewSenderService создает новый экземпляр SenderService.
func NewSenderService(transport smtp.TransportInterface, accountingDst string, log *slog.Logger) *SenderService {
	return &SenderService{
		transport:     transport,
		accountingDst: accountingDst,
		log:           log,
	}
}

// SendAuditReport разбирает отчёт аудита из тела сообщения брокера
// и отправляет сводку бухгалтерии.
func (s *SenderService) SendAuditReport(body []byte) error {
	var report models.AuditReport
	if err := json.Unmarshal(body, &report); err != nil {
		s.log.Error("failed to unmarshal audit report", sl.Err(err))
		return fmt.Errorf("error unmarshalling message: %w", err)
	}

	to := []string{s.accountingDst}
	subject := "Отчёт аудита целостности лицензионного ядра"
	bodyText := formatReport(&report)

	return s.sendEmail(to, subject, bodyText)
}

// formatReport собирает человеко-читаемую сводку отчёта.
func formatReport(report *models.AuditReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Аудит завершён: %s\n", report.FinishedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Режим без записи: %v, деструктивный режим: %v\n\n", report.DryRun, report.Destructive)
	fmt.Fprintf(&b, "Итоги: создано %d, обновлено %d, пропущено %d, ошибок %d\n",
		report.Summary.Created, report.Summary.Updated, report.Summary.Skipped, report.Summary.Errored)
	fmt.Fprintf(&b, "Выручка по счетам: %d, по платежам: %d (в центах)\n\n",
		report.RevenueInvoices, report.RevenuePayments)
	fmt.Fprintf(&b, "Найдено нарушений: %d\n", len(report.Findings))
	for _, f := range report.Findings {
		fmt.Fprintf(&b, "- [%s] %s %s: %s (исправлено: %v)\n",
			f.Check, f.Collection, f.UID, f.Detail, f.Repaired)
	}
	return b.String()
}

func (s *SenderService) sendEmail(to []string, subject, bodyText string) error {
	msg := strings.Join([]string{
		"From: " + s.transport.GetSMTPUser(),
		"To: " + strings.Join(to, ";"),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		bodyText,
	}, "\r\n")

	client, err := s.transport.Connect()
	if err != nil {
		s.log.Error("failed to connect to SMTP server", sl.Err(err))
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Mail(s.transport.GetSMTPUser()); err != nil {
		s.log.Error("failed to set MAIL FROM", "from", s.transport.GetSMTPUser(), "error", sl.Err(err))
		return err
	}

	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			s.log.Error("failed to set RCPT TO", "recipient", addr, "error", sl.Err(err))
			return err
		}
	}

	wc, err := client.Data()
	if err != nil {
		s.log.Error("failed to get Data writer", sl.Err(err))
		return err
	}

	if _, err = wc.Write([]byte(msg)); err != nil {
		s.log.Error("failed to write email body", sl.Err(err))
		return err
	}

	if err = wc.Close(); err != nil {
		s.log.Error("failed to close Data writer", sl.Err(err))
		return err
	}

	if err = client.Quit(); err != nil {
		s.log.Error("failed to quit SMTP client", sl.Err(err))
		return err
	}

	s.log.Info("audit report email sent", "to", to)
	return nil
}
