package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/athebyme/listing-cloner/internal/domain/models"
	"github.com/athebyme/listing-cloner/pkg/interfaces"
	"github.com/google/uuid"
)

// EventPublisher отправляет события клонирования в брокер, ключ сообщения - ID партии
type EventPublisher struct {
	broker interfaces.MessagingPort
	topic  string
}

// NewEventPublisher создает публикатор событий поверх MessagingPort
func NewEventPublisher(broker interfaces.MessagingPort, topic string) *EventPublisher {
	return &EventPublisher{broker: broker, topic: topic}
}

// Emit дополняет событие ID и временем и публикует его
func (p *EventPublisher) Emit(ctx context.Context, event models.CloneEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("ошибка сериализации события %s: %w", event.Type, err)
	}

	return p.broker.PublishWithKey(ctx, p.topic, event.BatchID, payload)
}

// NopPublisher отбрасывает события, когда брокер выключен
type NopPublisher struct{}

func (NopPublisher) Emit(context.Context, models.CloneEvent) error { return nil }

// DecodeEvent разбирает событие из сообщения брокера
func DecodeEvent(msg *interfaces.Message) (*models.CloneEvent, error) {
	var event models.CloneEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return nil, fmt.Errorf("некорректное событие в топике %s: %w", msg.Topic, err)
	}
	if event.BatchID == "" {
		event.BatchID = msg.Key
	}
	if event.Type == "" {
		return nil, fmt.Errorf("событие без типа в топике %s", msg.Topic)
	}
	return &event, nil
}

// EventRecorder принимает разобранные события из брокера
type EventRecorder interface {
	Record(ctx context.Context, event *models.CloneEvent) error
}

// JournalHandler возвращает обработчик сообщений топика событий.
// Неразбираемые сообщения логируются и подтверждаются, чтобы не блокировать партицию;
// ошибка записи возвращается, и сообщение остается неподтвержденным
func JournalHandler(recorder EventRecorder, logger interfaces.LoggerPort) interfaces.MessageHandler {
	return func(ctx context.Context, msg *interfaces.Message) error {
		event, err := DecodeEvent(msg)
		if err != nil {
			logger.WarnWithContext(ctx, "Сообщение пропущено",
				interfaces.LogField{Key: "message_id", Value: msg.ID},
				interfaces.LogField{Key: "topic", Value: msg.Topic},
				interfaces.LogField{Key: "error", Value: err.Error()},
			)
			return nil
		}

		evtCtx := ctx
		for _, key := range traceKeys {
			if v := msg.Headers[key]; v != "" {
				evtCtx = context.WithValue(evtCtx, key, v)
			}
		}
		return recorder.Record(evtCtx, event)
	}
}
