package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	postgres "github.com/athebyme/listing-cloner/internal/adapters/storage"
	"github.com/athebyme/listing-cloner/internal/domain/models"
	"github.com/athebyme/listing-cloner/internal/domain/services"
	"github.com/athebyme/listing-cloner/internal/domain/transform"
	"github.com/athebyme/listing-cloner/internal/security"
	"github.com/athebyme/listing-cloner/internal/utils"
	"github.com/athebyme/listing-cloner/pkg/interfaces"
	pkgutils "github.com/athebyme/listing-cloner/pkg/utils"
	"github.com/go-chi/chi/v5"
)

// CloneServiceInterface фазы клонирования
type CloneServiceInterface interface {
	CreateDrafts(ctx context.Context, req services.CreateDraftsRequest, progress services.ProgressReporter) (*models.DraftBatch, error)
	PublishDrafts(ctx context.Context, token string, batch *models.DraftBatch, progress services.ProgressReporter) (*models.PublishReport, error)
}

// TicketService выдает и проверяет билеты партий
type TicketService interface {
	Issue(batch *models.DraftBatch, operator string) (string, error)
	Verify(ticket string) (*models.DraftBatch, *security.BatchClaims, error)
}

// BatchJournal чтение журнала партий
type BatchJournal interface {
	GetBatchSummary(ctx context.Context, batchID string) (*postgres.BatchSummary, error)
	ListBatchEvents(ctx context.Context, batchID string, p *pkgutils.Pagination) ([]*models.CloneEvent, error)
}

// BatchHandler обработчик запросов для партий клонирования
type BatchHandler struct {
	clones  CloneServiceInterface
	tickets TicketService
	journal BatchJournal
	logger  interfaces.LoggerPort
}

// NewBatchHandler создает новый обработчик партий. journal может быть nil
func NewBatchHandler(clones CloneServiceInterface, tickets TicketService, journal BatchJournal, logger interfaces.LoggerPort) *BatchHandler {
	return &BatchHandler{
		clones:  clones,
		tickets: tickets,
		journal: journal,
		logger:  logger,
	}
}

// createBatchRequest тело запроса фазы черновиков
type createBatchRequest struct {
	APIToken          string          `json:"api_token"`
	ShippingProfileID json.RawMessage `json:"shipping_profile_id"`
	URLs              string          `json:"urls"`
}

// publishBatchRequest тело запроса фазы публикации
type publishBatchRequest struct {
	APIToken string `json:"api_token"`
	Ticket   string `json:"ticket"`
}

// CreateBatch запускает фазу черновиков
// @Summary Создать черновики
// @Description Получает исходные объявления, создает черновики с половинной ценой и возвращает партию с билетом для публикации
// @Tags batches
// @Accept json
// @Produce json
// @Param request body createBatchRequest true "Токен маркетплейса, профиль доставки и список URL"
// @Success 200 {object} response
// @Failure 400 {object} errorResponse
// @Router /api/v1/batches [post]
func (h *BatchHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, http.StatusBadRequest, "bad_request", "Некорректный формат данных")
		return
	}

	shippingProfileID, err := transform.ParseShippingProfileID(unquote(req.ShippingProfileID))
	if err != nil {
		renderError(w, r, http.StatusBadRequest, "validation_error", "shipping_profile_id должен быть положительным целым числом")
		return
	}

	operator := operatorFrom(r.Context())

	batch, err := h.clones.CreateDrafts(r.Context(), services.CreateDraftsRequest{
		Token:             req.APIToken,
		ShippingProfileID: shippingProfileID,
		URLText:           req.URLs,
		Operator:          operator,
	}, nil)
	if err != nil && batch == nil {
		switch {
		case errors.Is(err, utils.ErrEmptyToken):
			renderError(w, r, http.StatusBadRequest, "validation_error", "api_token не может быть пустым")
		case errors.Is(err, utils.ErrNoURLs):
			renderError(w, r, http.StatusBadRequest, "validation_error", "Список URL пуст")
		case errors.Is(err, transform.ErrInvalidShippingProfileID):
			renderError(w, r, http.StatusBadRequest, "validation_error", "shipping_profile_id должен быть положительным целым числом")
		default:
			h.logger.ErrorWithContext(r.Context(), "Ошибка фазы черновиков",
				interfaces.LogField{Key: "error", Value: err.Error()})
			renderError(w, r, http.StatusInternalServerError, "internal_error", "Ошибка создания черновиков")
		}
		return
	}

	var meta interface{}
	if err != nil {
		// Партия прервана, созданные черновики все равно можно опубликовать
		h.logger.WarnWithContext(r.Context(), "Фаза черновиков прервана",
			interfaces.LogField{Key: "batch_id", Value: batch.ID},
			interfaces.LogField{Key: "error", Value: err.Error()})
		meta = map[string]string{"interrupted": err.Error()}
	}

	if batch.Pending() {
		ticket, err := h.tickets.Issue(batch, operator)
		if err != nil {
			h.logger.ErrorWithContext(r.Context(), "Ошибка выдачи билета партии",
				interfaces.LogField{Key: "batch_id", Value: batch.ID},
				interfaces.LogField{Key: "error", Value: err.Error()})
			renderError(w, r, http.StatusInternalServerError, "internal_error", "Ошибка выдачи билета партии")
			return
		}
		batch.Ticket = ticket
	}

	renderOK(w, r, batch, meta)
}

// PublishBatch запускает фазу публикации по билету партии
// @Summary Опубликовать черновики
// @Description Ждет обработки фотографий и публикует все черновики партии. Повторный запуск ничего не делает
// @Tags batches
// @Accept json
// @Produce json
// @Param request body publishBatchRequest true "Токен маркетплейса и билет партии"
// @Success 200 {object} response
// @Failure 400 {object} errorResponse
// @Failure 403 {object} errorResponse
// @Router /api/v1/batches/publish [post]
func (h *BatchHandler) PublishBatch(w http.ResponseWriter, r *http.Request) {
	var req publishBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, http.StatusBadRequest, "bad_request", "Некорректный формат данных")
		return
	}
	if strings.TrimSpace(req.Ticket) == "" {
		renderError(w, r, http.StatusBadRequest, "validation_error", "ticket не может быть пустым")
		return
	}

	batch, claims, err := h.tickets.Verify(req.Ticket)
	if err != nil {
		if errors.Is(err, utils.ErrExpiredTicket) {
			renderError(w, r, http.StatusBadRequest, "ticket_expired", "Срок действия билета истек")
			return
		}
		renderError(w, r, http.StatusBadRequest, "invalid_ticket", "Некорректный билет партии")
		return
	}

	operator := operatorFrom(r.Context())
	if operator != "" && claims.Operator != "" && operator != claims.Operator {
		renderError(w, r, http.StatusForbidden, "forbidden", "Партия создана другим оператором")
		return
	}

	report, err := h.clones.PublishDrafts(r.Context(), req.APIToken, batch, nil)
	if err != nil && report == nil {
		if errors.Is(err, utils.ErrEmptyToken) {
			renderError(w, r, http.StatusBadRequest, "validation_error", "api_token не может быть пустым")
			return
		}
		h.logger.ErrorWithContext(r.Context(), "Ошибка фазы публикации",
			interfaces.LogField{Key: "batch_id", Value: batch.ID},
			interfaces.LogField{Key: "error", Value: err.Error()})
		renderError(w, r, http.StatusInternalServerError, "internal_error", "Ошибка публикации партии")
		return
	}

	var meta interface{}
	if err != nil {
		h.logger.WarnWithContext(r.Context(), "Фаза публикации прервана",
			interfaces.LogField{Key: "batch_id", Value: batch.ID},
			interfaces.LogField{Key: "error", Value: err.Error()})
		meta = map[string]string{"interrupted": err.Error()}
	}

	renderOK(w, r, report, meta)
}

// GetBatch возвращает счетчики партии из журнала
// @Summary Сводка по партии
// @Tags batches
// @Produce json
// @Param id path string true "ID партии"
// @Success 200 {object} response
// @Failure 404 {object} errorResponse
// @Router /api/v1/batches/{id} [get]
func (h *BatchHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		renderError(w, r, http.StatusNotFound, "not_found", utils.ErrJournalDisabled.Error())
		return
	}

	batchID := chi.URLParam(r, "id")
	summary, err := h.journal.GetBatchSummary(r.Context(), batchID)
	if err != nil {
		if errors.Is(err, postgres.ErrBatchNotFound) {
			renderError(w, r, http.StatusNotFound, "not_found", "Партия не найдена")
			return
		}
		h.logger.ErrorWithContext(r.Context(), "Ошибка чтения журнала",
			interfaces.LogField{Key: "batch_id", Value: batchID},
			interfaces.LogField{Key: "error", Value: err.Error()})
		renderError(w, r, http.StatusInternalServerError, "internal_error", "Ошибка чтения журнала")
		return
	}

	renderOK(w, r, summary, nil)
}

// ListBatchEvents возвращает события партии постранично
// @Summary События партии
// @Tags batches
// @Produce json
// @Param id path string true "ID партии"
// @Param page query int false "Номер страницы"
// @Param page_size query int false "Размер страницы"
// @Success 200 {object} response
// @Failure 404 {object} errorResponse
// @Router /api/v1/batches/{id}/events [get]
func (h *BatchHandler) ListBatchEvents(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		renderError(w, r, http.StatusNotFound, "not_found", utils.ErrJournalDisabled.Error())
		return
	}

	batchID := chi.URLParam(r, "id")
	pagination := pkgutils.PaginationFromQuery(r.URL.Query())

	events, err := h.journal.ListBatchEvents(r.Context(), batchID, pagination)
	if err != nil {
		h.logger.ErrorWithContext(r.Context(), "Ошибка чтения журнала",
			interfaces.LogField{Key: "batch_id", Value: batchID},
			interfaces.LogField{Key: "error", Value: err.Error()})
		renderError(w, r, http.StatusInternalServerError, "internal_error", "Ошибка чтения журнала")
		return
	}

	renderOK(w, r, pkgutils.NewPagedResult(events, pagination), nil)
}

// unquote принимает shipping_profile_id и строкой, и числом
func unquote(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func operatorFrom(ctx context.Context) string {
	operator, _ := ctx.Value("operator").(string)
	return operator
}
