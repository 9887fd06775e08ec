// Package auditsender собирает сервис рассылки отчётов аудита:
// потребитель очереди брокера и SMTP-транспорт для писем бухгалтерии.
package auditsender

import (
	"context"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/licensing-reconciler/internal/config"
	"github.com/magabrotheeeer/licensing-reconciler/internal/lib/smtp"
	"github.com/magabrotheeeer/licensing-reconciler/internal/rabbitmq"
	senderservice "github.com/magabrotheeeer/licensing-reconciler/internal/services/sender"
)

// Повторные попытки подключения к брокеру при старте.
const (
	connectRetries = 5
	connectDelay   = 2 * time.Second
)

// App — сервис рассылки отчётов аудита.
type App struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	sender *senderservice.SenderService
	logger *slog.Logger
}

// New собирает приложение: подключается к брокеру, объявляет топологию
// и готовит SMTP-транспорт.
func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitConnection, connectRetries, connectDelay)
	if err != nil {
		return nil, err
	}

	ch, err := rabbitmq.SetupChannel(conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	transport := smtp.NewTransport(cfg, logger)
	sender := senderservice.NewSenderService(transport, cfg.AccountingDst, logger)

	return &App{
		conn:   conn,
		ch:     ch,
		sender: sender,
		logger: logger,
	}, nil
}

// Run запускает потребителя очереди и работает до отмены контекста.
func (a *App) Run(ctx context.Context) error {
	err := rabbitmq.ConsumeReports(ctx, a.ch, rabbitmq.AuditQueue, a.logger, a.sender.SendAuditReport)
	if err != nil {
		a.logger.Error("failed to start audit findings consumer", slog.Any("err", err))
		return err
	}

	<-ctx.Done()
	a.logger.Info("audit sender shutting down gracefully")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", slog.Any("err", err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", slog.Any("err", err))
	}
	return nil
}
