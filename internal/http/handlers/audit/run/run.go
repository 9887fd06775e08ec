// Package run реализует HTTP-обработчик запуска аудита целостности.
//
// Через API аудит выполняется только в режиме без записи: обработчик
// строит отчёт о нарушениях, не внося исправлений. Исправления
// выполняются пакетными заданиями.
package run

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/licensing-reconciler/internal/http/response"
	"github.com/magabrotheeeer/licensing-reconciler/internal/lib/sl"
	"github.com/magabrotheeeer/licensing-reconciler/internal/models"
)

// Service описывает интерфейс аудитора в режиме без записи.
type Service interface {
	Run(ctx context.Context) (*models.AuditReport, error)
}

// Handler обрабатывает HTTP-запросы запуска аудита.
type Handler struct {
	log     *slog.Logger
	auditor Service
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, auditor Service) *Handler {
	return &Handler{log: log, auditor: auditor}
}

// ServeHTTP godoc
// @Summary Запуск аудита целостности
// @Description Выполняет все проверки в режиме без записи и возвращает отчёт.
// @Tags Audit
// @Accept  json
// @Produce  json
// @Param request body models.DummyAuditRun false "Параметры запуска"
// @Success 200 {object} map[string]any "Отчёт аудита"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Security BearerAuth
// @Router /audit/run [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.audit.run"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.DummyAuditRun
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		log.Error("failed to decode request body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	report, err := h.auditor.Run(r.Context())
	if err != nil {
		log.Error("audit run failed", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("audit failed"))
		return
	}

	log.Info("audit run completed", slog.Int("findings", len(report.Findings)))
	render.JSON(w, r, response.OKWithData(report))
}
