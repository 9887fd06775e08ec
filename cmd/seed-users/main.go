// Package main реализует задание посева учётных записей из yaml-файла:
// пользователи, подписки, организации, лицензии и платёжные записи.
// Повторный запуск с тем же файлом не создаёт дубликатов.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/magabrotheeeer/licensing-reconciler/internal/cache"
	"github.com/magabrotheeeer/licensing-reconciler/internal/config"
	"github.com/magabrotheeeer/licensing-reconciler/internal/identity"
	"github.com/magabrotheeeer/licensing-reconciler/internal/lib/batch"
	"github.com/magabrotheeeer/licensing-reconciler/internal/migrations"
	billingservice "github.com/magabrotheeeer/licensing-reconciler/internal/services/billing"
	licenseservice "github.com/magabrotheeeer/licensing-reconciler/internal/services/license"
	orgservice "github.com/magabrotheeeer/licensing-reconciler/internal/services/orgs"
	seederservice "github.com/magabrotheeeer/licensing-reconciler/internal/services/seeder"
	subservice "github.com/magabrotheeeer/licensing-reconciler/internal/services/subscription"
	registryservice "github.com/magabrotheeeer/licensing-reconciler/internal/services/userregistry"
	"github.com/magabrotheeeer/licensing-reconciler/internal/storage/repository"
)

func main() {
	dryRun := pflag.Bool("dry-run", false, "log intended writes without performing them")
	seedFile := pflag.String("seed-file", "./seed.yaml", "path to the seed accounts file")
	pflag.Parse()

	cfg := config.MustLoad()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	logger.Info("starting seed-users", slog.String("env", cfg.Env), slog.Bool("dry_run", *dryRun))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	seedCfg, err := seederservice.LoadSeedConfig(*seedFile)
	if err != nil {
		logger.Error("failed to load seed config", slog.Any("err", err))
		os.Exit(1)
	}

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

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		logger.Error("failed to connect to cache", slog.Any("err", err))
		os.Exit(1)
	}

	identityClient := identity.NewClient(cfg.IdentityAPIURL, cfg.IdentityKey, cfg.IdentitySecret)
	pager := batch.NewPager(cfg.BatchSize, cfg.BatchDelay)

	registry := registryservice.NewUserRegistryService(db, identityClient, cacheRedis, logger)
	ledger := subservice.NewLedgerService(db, logger)
	orgs := orgservice.NewOrgService(db, logger)
	allocator := licenseservice.NewAllocatorService(db, logger, *dryRun)
	reconciler := billingservice.NewReconcilerService(db, logger, pager, *dryRun)
	seeder := seederservice.NewSeederService(registry, ledger, orgs, allocator, reconciler, logger, *dryRun)

	summary, err := seeder.Seed(ctx, seedCfg)
	if err != nil {
		logger.Error("seed interrupted", slog.Any("err", err))
		os.Exit(1)
	}

	logger.Info("seed-users finished",
		slog.Int("created", summary.Created),
		slog.Int("skipped", summary.Skipped),
		slog.Int("errored", summary.Errored))
}
