// Package adminapi собирает административный HTTP-сервер: хранилище,
// миграции, кэш, сервисы домена и маршруты. Аудит через API выполняется
// только в режиме без записи.
package adminapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"

	"github.com/magabrotheeeer/licensing-reconciler/internal/cache"
	"github.com/magabrotheeeer/licensing-reconciler/internal/config"
	"github.com/magabrotheeeer/licensing-reconciler/internal/identity"
	"github.com/magabrotheeeer/licensing-reconciler/internal/lib/batch"
	"github.com/magabrotheeeer/licensing-reconciler/internal/lib/jwt"
	"github.com/magabrotheeeer/licensing-reconciler/internal/migrations"
	auditorservice "github.com/magabrotheeeer/licensing-reconciler/internal/services/auditor"
	licenseservice "github.com/magabrotheeeer/licensing-reconciler/internal/services/license"
	subservice "github.com/magabrotheeeer/licensing-reconciler/internal/services/subscription"
	registryservice "github.com/magabrotheeeer/licensing-reconciler/internal/services/userregistry"
	"github.com/magabrotheeeer/licensing-reconciler/internal/storage/repository"
)

// App — административный HTTP-сервер со всеми зависимостями.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
}

// New собирает приложение: подключает хранилище, прогоняет миграции,
// поднимает кэш и регистрирует маршруты.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, "./migrations"); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	identityClient := identity.NewClient(cfg.IdentityAPIURL, cfg.IdentityKey, cfg.IdentitySecret)
	maker := jwt.NewMaker(cfg.JWTSecretKey, cfg.TokenTTL)
	pager := batch.NewPager(cfg.BatchSize, cfg.BatchDelay)

	registry := registryservice.NewUserRegistryService(db, identityClient, cacheRedis, logger)
	ledger := subservice.NewLedgerService(db, logger)
	allocator := licenseservice.NewAllocatorService(db, logger, true)
	auditor := auditorservice.NewAuditorService(db, allocator, logger, pager, nil, true, false)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, registry, ledger, auditor, maker, db)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		db:     db,
	}, nil
}

// Run запускает сервер и останавливает его по отмене контекста.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		_ = a.db.Close()
		return err
	}
}
