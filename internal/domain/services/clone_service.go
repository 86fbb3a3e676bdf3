package services

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/athebyme/listing-cloner/internal/domain/models"
	"github.com/athebyme/listing-cloner/internal/domain/transform"
	"github.com/athebyme/listing-cloner/internal/metrics"
	"github.com/athebyme/listing-cloner/internal/utils"
	"github.com/athebyme/listing-cloner/pkg/interfaces"
	"github.com/google/uuid"
)

const publishGuardPrefix = "batch:published:"

// CreateDraftsRequest входные данные фазы черновиков
type CreateDraftsRequest struct {
	Token             string
	ShippingProfileID int64
	URLText           string
	Operator          string
}

// CloneService клонирует объявления в две фазы: черновики, затем публикация
type CloneService struct {
	upstreams UpstreamFactory
	guard     interfaces.CachePort
	events    EventSink
	logger    interfaces.LoggerPort
	pacing    Pacing
	sleep     Sleeper
	now       func() time.Time
}

// Option настройка CloneService
type Option func(*CloneService)

// WithSleeper подменяет ожидание, используется в тестах
func WithSleeper(sleep Sleeper) Option {
	return func(s *CloneService) { s.sleep = sleep }
}

// NewCloneService создает новый экземпляр CloneService
func NewCloneService(
	upstreams UpstreamFactory,
	guard interfaces.CachePort,
	events EventSink,
	logger interfaces.LoggerPort,
	pacing Pacing,
	opts ...Option,
) *CloneService {
	s := &CloneService{
		upstreams: upstreams,
		guard:     guard,
		events:    events,
		logger:    logger,
		pacing:    pacing,
		sleep:     SleepContext,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateDrafts выполняет фазу черновиков: для каждого URL по порядку получает
// исходное объявление, собирает черновик и создает его. Сбой одного URL не
// прерывает партию. Между элементами выдерживается InterItemDelay.
// При отмене контекста возвращается частичная партия и ctx.Err()
func (s *CloneService) CreateDrafts(ctx context.Context, req CreateDraftsRequest, progress ProgressReporter) (*models.DraftBatch, error) {
	if strings.TrimSpace(req.Token) == "" {
		return nil, utils.ErrEmptyToken
	}
	if req.ShippingProfileID <= 0 {
		return nil, fmt.Errorf("%w: %d", transform.ErrInvalidShippingProfileID, req.ShippingProfileID)
	}
	urls := transform.SplitURLs(req.URLText)
	if len(urls) == 0 {
		return nil, utils.ErrNoURLs
	}
	if progress == nil {
		progress = discardProgress{}
	}
	if req.Operator == "" {
		req.Operator = operatorFromContext(ctx)
	}

	batch := &models.DraftBatch{
		ID:                uuid.New().String(),
		ShippingProfileID: req.ShippingProfileID,
		DraftIDs:          []string{},
		Items:             make([]models.ItemOutcome, 0, len(urls)),
		State:             models.StateRunning,
		CreatedAt:         s.now().UTC(),
	}
	log := s.logger.WithBatch(batch.ID)
	log.InfoWithContext(ctx, "Начата фаза черновиков",
		interfaces.LogField{Key: "urls", Value: len(urls)},
		interfaces.LogField{Key: "shipping_profile_id", Value: req.ShippingProfileID},
	)

	upstream := s.upstreams(req.Token)

	var loopErr error
	for i, rawURL := range urls {
		if err := ctx.Err(); err != nil {
			loopErr = err
			break
		}

		outcome := s.draftOne(ctx, upstream, rawURL, req.ShippingProfileID)
		outcome.Position = i
		outcome.Progress = float64(i+1) / float64(len(urls))

		if outcome.Status == models.ItemCreated {
			batch.DraftIDs = append(batch.DraftIDs, outcome.DraftID)
		}
		batch.Items = append(batch.Items, outcome)

		s.recordDraftOutcome(ctx, log, batch.ID, req.Operator, outcome)
		progress.Report(outcome)

		if i < len(urls)-1 {
			if err := s.sleep(ctx, s.pacing.InterItemDelay); err != nil {
				loopErr = err
				break
			}
		}
	}

	if batch.Pending() {
		batch.State = models.StateAwaitingPublishConfirmation
	} else {
		batch.State = models.StateIdle
	}

	s.emit(ctx, log, models.CloneEvent{
		Type:     models.BatchDraftedEvent,
		BatchID:  batch.ID,
		Message:  fmt.Sprintf("%d of %d drafts created", len(batch.DraftIDs), len(urls)),
		Operator: req.Operator,
	})
	log.InfoWithContext(ctx, "Фаза черновиков завершена",
		interfaces.LogField{Key: "created", Value: len(batch.DraftIDs)},
		interfaces.LogField{Key: "total", Value: len(urls)},
		interfaces.LogField{Key: "state", Value: string(batch.State)},
	)

	return batch, loopErr
}

// draftOne обрабатывает один URL фазы черновиков
func (s *CloneService) draftOne(ctx context.Context, upstream Upstream, rawURL string, shippingProfileID int64) models.ItemOutcome {
	outcome := models.ItemOutcome{URL: rawURL}

	listingID, ok := transform.ExtractListingID(rawURL)
	if !ok {
		outcome.Status = models.ItemSkippedInvalidURL
		outcome.Message = "в URL нет ID объявления"
		return outcome
	}
	outcome.SourceListingID = listingID

	fetched := upstream.FetchListing(ctx, listingID)
	switch fetched.Kind {
	case models.FetchOK:
	case models.FetchNotFound:
		outcome.Status = models.ItemFetchNotFound
		outcome.Message = "объявление не найдено"
		return outcome
	default:
		outcome.Status = models.ItemFetchFailed
		if fetched.StatusCode == http.StatusOK && fetched.Err != nil {
			outcome.Message = fetched.Err.Error()
		} else {
			outcome.Message = failureMessage(fetched.StatusCode, "", fetched.Err)
		}
		return outcome
	}

	payload := transform.BuildDraftPayload(fetched.Listing, shippingProfileID)

	created := upstream.CreateDraft(ctx, payload)
	if !created.OK {
		outcome.Status = models.ItemCreateFailed
		outcome.Message = failureMessage(created.StatusCode, created.Message, created.Err)
		return outcome
	}

	outcome.Status = models.ItemCreated
	outcome.DraftID = created.DraftID
	outcome.Message = "черновик создан"
	return outcome
}

func (s *CloneService) recordDraftOutcome(ctx context.Context, log interfaces.LoggerPort, batchID, operator string, outcome models.ItemOutcome) {
	metrics.DraftsTotal.WithLabelValues(string(outcome.Status)).Inc()

	fields := []interface{}{
		interfaces.LogField{Key: "position", Value: outcome.Position},
		interfaces.LogField{Key: "url", Value: outcome.URL},
		interfaces.LogField{Key: "status", Value: string(outcome.Status)},
	}

	eventType := models.DraftSkippedEvent
	switch outcome.Status {
	case models.ItemCreated:
		eventType = models.DraftCreatedEvent
		log.InfoWithContext(ctx, "Черновик создан", append(fields,
			interfaces.LogField{Key: "source_listing_id", Value: outcome.SourceListingID},
			interfaces.LogField{Key: "draft_id", Value: outcome.DraftID})...)
	case models.ItemSkippedInvalidURL, models.ItemFetchNotFound:
		log.DebugWithContext(ctx, "URL пропущен", fields...)
	default:
		log.WarnWithContext(ctx, "URL пропущен из-за ошибки", append(fields,
			interfaces.LogField{Key: "message", Value: outcome.Message})...)
	}

	s.emit(ctx, log, models.CloneEvent{
		Type:            eventType,
		BatchID:         batchID,
		SourceListingID: outcome.SourceListingID,
		DraftID:         outcome.DraftID,
		Status:          outcome.Status,
		Message:         outcome.Message,
		Operator:        operator,
	})
}

// PublishDrafts выполняет фазу публикации. Пустая партия - ничего не делает.
// Перед первой публикацией выдерживается PublishWarmup. Успех определяется
// только статусом ответа. Партия очищается в конце независимо от результатов,
// повторный запуск для той же партии не выполняет ни одного вызова
func (s *CloneService) PublishDrafts(ctx context.Context, token string, batch *models.DraftBatch, progress ProgressReporter) (*models.PublishReport, error) {
	if batch == nil {
		batch = &models.DraftBatch{DraftIDs: []string{}, State: models.StateIdle}
	}
	if progress == nil {
		progress = discardProgress{}
	}

	report := &models.PublishReport{
		BatchID:   batch.ID,
		Published: []string{},
		Failed:    []string{},
		Items:     []models.ItemOutcome{},
		Batch:     batch,
	}

	if !batch.Pending() {
		batch.Clear()
		return report, nil
	}
	if strings.TrimSpace(token) == "" {
		return nil, utils.ErrEmptyToken
	}

	log := s.logger.WithBatch(batch.ID)
	operator := operatorFromContext(ctx)

	guardKey := publishGuardPrefix + batch.ID
	acquired, err := s.guard.Lock(ctx, guardKey, s.pacing.GuardTTL)
	if err != nil {
		return nil, fmt.Errorf("ошибка захвата партии %s: %w", batch.ID, err)
	}
	if !acquired {
		log.WarnWithContext(ctx, "Партия уже публиковалась, повторный запуск пропущен")
		report.AlreadyConsumed = true
		batch.Clear()
		return report, nil
	}

	batch.State = models.StatePublishing
	log.InfoWithContext(ctx, "Ожидание обработки фотографий перед публикацией",
		interfaces.LogField{Key: "warmup", Value: s.pacing.PublishWarmup.String()},
		interfaces.LogField{Key: "drafts", Value: len(batch.DraftIDs)},
	)

	if err := s.sleep(ctx, s.pacing.PublishWarmup); err != nil {
		// Ни одного вызова не было, партию можно запустить снова
		if unlockErr := s.guard.Unlock(context.WithoutCancel(ctx), guardKey); unlockErr != nil {
			log.ErrorWithContext(ctx, "Ошибка освобождения партии",
				interfaces.LogField{Key: "error", Value: unlockErr.Error()})
		}
		batch.State = models.StateAwaitingPublishConfirmation
		return report, err
	}

	upstream := s.upstreams(token)
	total := len(batch.DraftIDs)

	var loopErr error
	for i, draftID := range batch.DraftIDs {
		outcome := models.ItemOutcome{
			Position: i,
			DraftID:  draftID,
			Progress: float64(i+1) / float64(total),
		}

		if loopErr == nil {
			loopErr = ctx.Err()
		}
		if loopErr != nil {
			outcome.Status = models.ItemPublishFailed
			outcome.Message = loopErr.Error()
		} else {
			res := upstream.PublishListing(ctx, draftID)
			if res.OK {
				outcome.Status = models.ItemPublished
				outcome.Message = "публикация отправлена"
			} else {
				outcome.Status = models.ItemPublishFailed
				outcome.Message = failureMessage(res.StatusCode, res.Message, res.Err)
			}
		}

		if outcome.Status == models.ItemPublished {
			report.Published = append(report.Published, draftID)
		} else {
			report.Failed = append(report.Failed, draftID)
		}
		report.Items = append(report.Items, outcome)

		s.recordPublishOutcome(ctx, log, batch.ID, operator, outcome)
		progress.Report(outcome)
	}

	s.emit(ctx, log, models.CloneEvent{
		Type:     models.BatchPublishedEvent,
		BatchID:  batch.ID,
		Message:  fmt.Sprintf("%d of %d listings published", len(report.Published), total),
		Operator: operator,
	})
	log.InfoWithContext(ctx, "Фаза публикации завершена",
		interfaces.LogField{Key: "published", Value: len(report.Published)},
		interfaces.LogField{Key: "failed", Value: len(report.Failed)},
	)

	batch.Clear()
	return report, loopErr
}

func (s *CloneService) recordPublishOutcome(ctx context.Context, log interfaces.LoggerPort, batchID, operator string, outcome models.ItemOutcome) {
	metrics.PublishTotal.WithLabelValues(string(outcome.Status)).Inc()

	eventType := models.ListingPublishedEvent
	if outcome.Status == models.ItemPublished {
		log.InfoWithContext(ctx, "Объявление опубликовано",
			interfaces.LogField{Key: "draft_id", Value: outcome.DraftID})
	} else {
		eventType = models.ListingPublishFailedEvent
		log.WarnWithContext(ctx, "Ошибка публикации",
			interfaces.LogField{Key: "draft_id", Value: outcome.DraftID},
			interfaces.LogField{Key: "message", Value: outcome.Message})
	}

	s.emit(ctx, log, models.CloneEvent{
		Type:     eventType,
		BatchID:  batchID,
		DraftID:  outcome.DraftID,
		Status:   outcome.Status,
		Message:  outcome.Message,
		Operator: operator,
	})
}

// emit отправляет событие; ошибка брокера только логируется
func (s *CloneService) emit(ctx context.Context, log interfaces.LoggerPort, event models.CloneEvent) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now().UTC()
	}
	if err := s.events.Emit(context.WithoutCancel(ctx), event); err != nil {
		log.WarnWithContext(ctx, "Не удалось отправить событие",
			interfaces.LogField{Key: "type", Value: event.Type},
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
	}
}

// failureMessage сообщение ответа, иначе "Status N", иначе текст ошибки транспорта
func failureMessage(status int, message string, err error) string {
	switch {
	case message != "":
		return message
	case status != 0:
		return "Status " + strconv.Itoa(status)
	case err != nil:
		return err.Error()
	}
	return "неизвестная ошибка"
}

func operatorFromContext(ctx context.Context) string {
	if op, ok := ctx.Value("operator").(string); ok {
		return op
	}
	return ""
}
