// Package login реализует HTTP-обработчик для запросов аутентификации
// служебных пользователей.
//
// В нём определяется структура Request для входных данных, выполняется
// декодирование JSON, проверка и валидация полей, сверка пароля с хешем
// из реестра пользователей и выпуск JWT. В случае ошибок формируются
// соответствующие HTTP-ответы.
package login

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/licensing-reconciler/internal/http/response"
	"github.com/magabrotheeeer/licensing-reconciler/internal/lib/jwt"
	"github.com/magabrotheeeer/licensing-reconciler/internal/lib/password"
	"github.com/magabrotheeeer/licensing-reconciler/internal/lib/sl"
	"github.com/magabrotheeeer/licensing-reconciler/internal/models"
)

// Request — структура входных данных для авторизации.
type Request struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// Service описывает интерфейс реестра пользователей для авторизации.
type Service interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// Handler обрабатывает HTTP-запросы для авторизации.
type Handler struct {
	log      *slog.Logger        // Логгер для записи операций и ошибок
	registry Service             // Реестр пользователей
	maker    jwt.Maker           // Выпуск JWT токенов
	validate *validator.Validate // Валидатор для проверки входных данных
}

// New создает новый экземпляр Handler с указанными логгером, реестром и выпуском токенов.
//
// Инициализирует валидатор для проверки структур.
func New(log *slog.Logger, registry Service, maker jwt.Maker) *Handler {
	return &Handler{
		log:      log,
		registry: registry,
		maker:    maker,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Авторизация служебного пользователя
// @Description Аутентифицирует пользователя по почте и паролю. Возвращает JWT.
// @Tags Auth
// @Accept  json
// @Produce  json
// @Param request body Request true "Учетные данные пользователя"
// @Success 200 {object} map[string]any "Успешная авторизация"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 401 {object} response.ErrorResponse "Неверные учетные данные"
// @Failure 403 {object} response.ErrorResponse "Недостаточно прав"
// @Router /login [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.login"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	user, err := h.registry.GetByEmail(r.Context(), req.Email)
	if err != nil {
		log.Error("failed to find user", sl.Err(err))
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("invalid credentials"))
		return
	}
	if err := password.CompareHash(user.PasswordHash, req.Password); err != nil {
		log.Error("password mismatch", sl.Err(err))
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("invalid credentials"))
		return
	}
	// Токены выпускаются только служебным ролям.
	if !models.IsStaff(user.Role) {
		log.Warn("login rejected for non-staff role",
			slog.String("email", req.Email), slog.String("role", user.Role))
		w.WriteHeader(http.StatusForbidden)
		render.JSON(w, r, response.Error("insufficient role"))
		return
	}

	token, err := h.maker.GenerateToken(user.Email, user.Role)
	if err != nil {
		log.Error("failed to generate token", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	log.Info("login success", slog.String("email", req.Email))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"token": token,
		"role":  user.Role,
		"email": user.Email,
	}))
}
