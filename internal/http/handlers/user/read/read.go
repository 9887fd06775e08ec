// Package read реализует HTTP-обработчик чтения пользователя по почте.
package read

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/licensing-reconciler/internal/errs"
	"github.com/magabrotheeeer/licensing-reconciler/internal/http/response"
	"github.com/magabrotheeeer/licensing-reconciler/internal/lib/sl"
	"github.com/magabrotheeeer/licensing-reconciler/internal/models"
)

// Service описывает интерфейс реестра пользователей для чтения.
type Service interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// Handler обрабатывает HTTP-запросы чтения пользователя.
type Handler struct {
	log      *slog.Logger
	registry Service
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, registry Service) *Handler {
	return &Handler{log: log, registry: registry}
}

// ServeHTTP godoc
// @Summary Чтение пользователя
// @Description Возвращает пользователя реестра по почте. Хеш пароля не возвращается.
// @Tags Users
// @Produce  json
// @Param email path string true "Почта пользователя"
// @Success 200 {object} map[string]any "Данные пользователя"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Security BearerAuth
// @Router /users/{email} [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.user.read"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	email := chi.URLParam(r, "email")
	user, err := h.registry.GetByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			log.Info("user not found", slog.String("email", email))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("user not found"))
			return
		}
		log.Error("failed to read user", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	render.JSON(w, r, response.OKWithData(map[string]any{
		"uid":            user.UID,
		"email":          user.Email,
		"display_name":   user.DisplayName,
		"role":           user.Role,
		"email_verified": user.EmailVerified,
		"external_id":    user.ExternalID,
		"created_at":     user.CreatedAt,
		"updated_at":     user.UpdatedAt,
	}))
}
