package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/magabrotheeeer/licensing-reconciler/internal/app/auditsender"
	"github.com/magabrotheeeer/licensing-reconciler/internal/config"
)

func main() {
	cfg := config.MustLoad()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	logger.Info("starting audit-sender", slog.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := auditsender.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize audit-sender", slog.Any("err", err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		logger.Error("audit-sender stopped with error", slog.Any("err", err))
		os.Exit(1)
	}

	logger.Info("audit-sender stopped gracefully")
}
