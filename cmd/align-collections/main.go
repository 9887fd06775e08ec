// Package main реализует задание сведения коллекций: полный проход
// аудитора по всем проверкам и восстановление связей счёт-платёж.
// В деструктивном режиме осиротевшие записи удаляются, иначе только
// попадают в отчёт. Отчёт публикуется в брокер для бухгалтерии.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/licensing-reconciler/internal/config"
	"github.com/magabrotheeeer/licensing-reconciler/internal/lib/batch"
	"github.com/magabrotheeeer/licensing-reconciler/internal/migrations"
	auditorservice "github.com/magabrotheeeer/licensing-reconciler/internal/services/auditor"
	billingservice "github.com/magabrotheeeer/licensing-reconciler/internal/services/billing"
	licenseservice "github.com/magabrotheeeer/licensing-reconciler/internal/services/license"
	"github.com/magabrotheeeer/licensing-reconciler/internal/rabbitmq"
	"github.com/magabrotheeeer/licensing-reconciler/internal/storage/repository"
)

// Повторные попытки подключения к брокеру при старте.
const (
	connectRetries = 5
	connectDelay   = 2 * time.Second
)

func main() {
	dryRun := pflag.Bool("dry-run", false, "log intended writes without performing them")
	destructive := pflag.Bool("destructive", false, "delete orphaned records instead of reporting them")
	pflag.Parse()

	cfg := config.MustLoad()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	logger.Info("starting align-collections", slog.String("env", cfg.Env),
		slog.Bool("dry_run", *dryRun), slog.Bool("destructive", *destructive))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		logger.Error("failed to connect to storage", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()
	if err := migrations.Run(db.DB, "./migrations"); err != nil {
		logger.Error("failed to run migrations", slog.Any("err", err))
		os.Exit(1)
	}

	// Брокер необязателен: без него отчёт остаётся в логах.
	var channel *amqp.Channel
	if cfg.RabbitConnection != "" {
		conn, err := rabbitmq.Connect(cfg.RabbitConnection, connectRetries, connectDelay)
		if err != nil {
			logger.Warn("broker unavailable, report will not be published", slog.Any("err", err))
		} else {
			defer func() {
				_ = conn.Close()
			}()
			channel, err = rabbitmq.SetupChannel(conn)
			if err != nil {
				logger.Warn("failed to set up broker channel", slog.Any("err", err))
				channel = nil
			}
		}
	}

	pager := batch.NewPager(cfg.BatchSize, cfg.BatchDelay)
	allocator := licenseservice.NewAllocatorService(db, logger, *dryRun)
	reconciler := billingservice.NewReconcilerService(db, logger, pager, *dryRun)
	auditor := auditorservice.NewAuditorService(db, allocator, logger, pager, channel, *dryRun, *destructive)

	report, err := auditor.Run(ctx)
	if err != nil {
		logger.Error("audit run failed", slog.Any("err", err))
		os.Exit(1)
	}

	linkSummary, err := reconciler.ReconcileInvoiceLinks(ctx)
	if err != nil {
		logger.Error("invoice link reconciliation failed", slog.Any("err", err))
		os.Exit(1)
	}

	logger.Info("align-collections finished",
		slog.Int("findings", len(report.Findings)),
		slog.Int("audit_updated", report.Summary.Updated),
		slog.Int("audit_errored", report.Summary.Errored),
		slog.Int("links_created", linkSummary.Created),
		slog.Int("links_errored", linkSummary.Errored),
		slog.Int64("revenue_invoices", report.RevenueInvoices),
		slog.Int64("revenue_payments", report.RevenuePayments))
}
