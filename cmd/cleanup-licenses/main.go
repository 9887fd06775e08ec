// Package main реализует задание нормализации лицензий: проходит всех
// пользователей постранично и сворачивает лицензии каждого к ровно
// одной текущей на подписку. Повторный запуск не производит записей.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/magabrotheeeer/licensing-reconciler/internal/config"
	"github.com/magabrotheeeer/licensing-reconciler/internal/lib/batch"
	"github.com/magabrotheeeer/licensing-reconciler/internal/lib/sl"
	"github.com/magabrotheeeer/licensing-reconciler/internal/migrations"
	licenseservice "github.com/magabrotheeeer/licensing-reconciler/internal/services/license"
	"github.com/magabrotheeeer/licensing-reconciler/internal/models"
	"github.com/magabrotheeeer/licensing-reconciler/internal/storage/repository"
)

func main() {
	dryRun := pflag.Bool("dry-run", false, "log intended writes without performing them")
	pflag.Parse()

	cfg := config.MustLoad()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	logger.Info("starting cleanup-licenses", slog.String("env", cfg.Env), slog.Bool("dry_run", *dryRun))

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

	allocator := licenseservice.NewAllocatorService(db, logger, *dryRun)
	pager := batch.NewPager(cfg.BatchSize, cfg.BatchDelay)

	var total models.Summary
	err = pager.Run(ctx, func(ctx context.Context, limit, offset int) (int, error) {
		users, err := db.ListUsers(ctx, limit, offset)
		if err != nil {
			return 0, err
		}
		for _, user := range users {
			summary, err := allocator.NormalizeToSingleActiveLicense(ctx, user.UID)
			if err != nil {
				logger.Error("failed to normalize licenses",
					slog.String("user_uid", user.UID), sl.Err(err))
				total.Errored++
				continue
			}
			total.Add(summary)
		}
		return len(users), nil
	})
	if err != nil {
		logger.Error("cleanup interrupted", slog.Any("err", err))
		os.Exit(1)
	}

	logger.Info("cleanup-licenses finished",
		slog.Int("updated", total.Updated),
		slog.Int("skipped", total.Skipped),
		slog.Int("errored", total.Errored))
}
