package services

import (
	"context"
	"fmt"
	"time"

	"github.com/athebyme/listing-cloner/internal/domain/models"
	"github.com/athebyme/listing-cloner/internal/metrics"
	"github.com/athebyme/listing-cloner/pkg/interfaces"
)

// EventStore постоянное хранилище журнала партий
type EventStore interface {
	RecordEvent(ctx context.Context, event *models.CloneEvent) error
}

// JournalService записывает события клонирования из брокера в журнал
type JournalService struct {
	store  EventStore
	logger interfaces.LoggerPort
}

// NewJournalService создает новый экземпляр JournalService
func NewJournalService(store EventStore, logger interfaces.LoggerPort) *JournalService {
	return &JournalService{store: store, logger: logger}
}

// Record сохраняет событие. Событие без ID или партии отбрасывается с предупреждением
func (j *JournalService) Record(ctx context.Context, event *models.CloneEvent) error {
	start := time.Now()
	defer func() {
		metrics.EventProcessingDuration.WithLabelValues(event.Type).Observe(time.Since(start).Seconds())
	}()

	if event.ID == "" || event.BatchID == "" {
		metrics.EventsProcessed.WithLabelValues(event.Type, "invalid").Inc()
		j.logger.WarnWithContext(ctx, "Событие без ID или партии пропущено",
			interfaces.LogField{Key: "type", Value: event.Type})
		return nil
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	if err := j.store.RecordEvent(ctx, event); err != nil {
		metrics.EventsProcessed.WithLabelValues(event.Type, "error").Inc()
		return fmt.Errorf("ошибка записи события %s партии %s: %w", event.ID, event.BatchID, err)
	}

	metrics.EventsProcessed.WithLabelValues(event.Type, "success").Inc()
	j.logger.WithBatch(event.BatchID).DebugWithContext(ctx, "Событие записано в журнал",
		interfaces.LogField{Key: "type", Value: event.Type},
		interfaces.LogField{Key: "event_id", Value: event.ID},
	)
	return nil
}
