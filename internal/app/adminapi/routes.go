// Package adminapi предоставляет маршруты административного API.
package adminapi

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/time/rate"

	auditrun "github.com/magabrotheeeer/licensing-reconciler/internal/http/handlers/audit/run"
	"github.com/magabrotheeeer/licensing-reconciler/internal/http/handlers/auth/login"
	"github.com/magabrotheeeer/licensing-reconciler/internal/http/handlers/health"
	sublist "github.com/magabrotheeeer/licensing-reconciler/internal/http/handlers/subscription/list"
	userread "github.com/magabrotheeeer/licensing-reconciler/internal/http/handlers/user/read"
	"github.com/magabrotheeeer/licensing-reconciler/internal/http/middlewarectx"
	"github.com/magabrotheeeer/licensing-reconciler/internal/lib/jwt"
	auditorservice "github.com/magabrotheeeer/licensing-reconciler/internal/services/auditor"
	subservice "github.com/magabrotheeeer/licensing-reconciler/internal/services/subscription"
	registryservice "github.com/magabrotheeeer/licensing-reconciler/internal/services/userregistry"
	"github.com/magabrotheeeer/licensing-reconciler/internal/storage/repository"
)

// Общий лимит запросов к административному API.
const requestsPerSecond = 50

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger,
	registry *registryservice.UserRegistryService,
	ledger *subservice.LedgerService,
	auditor *auditorservice.AuditorService,
	maker jwt.Maker,
	db *repository.Storage) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Post("/login", login.New(logger, registry, maker).ServeHTTP)

		// Группа для служебных ролей с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(maker, logger))
			r.Use(middlewarectx.StaffOnlyMiddleware(logger))
			r.Use(middlewarectx.RateLimitMiddleware(rate.NewLimiter(requestsPerSecond, requestsPerSecond)))
			r.Get("/users/{email}", userread.New(logger, registry).ServeHTTP)
			r.Get("/subscriptions/list", sublist.New(logger, ledger).ServeHTTP)
			r.Post("/audit/run", auditrun.New(logger, auditor).ServeHTTP)
		})
	})

	r.Get("/health", health.New(logger, db).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
