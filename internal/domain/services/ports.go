package services

import (
	"context"
	"time"

	"github.com/athebyme/listing-cloner/internal/domain/models"
)

// Upstream API маркетплейса от имени одного токена
type Upstream interface {
	FetchListing(ctx context.Context, listingID string) models.FetchResult
	CreateDraft(ctx context.Context, payload models.DraftPayload) models.CreateResult
	PublishListing(ctx context.Context, draftID string) models.PublishResult
}

// UpstreamFactory создает клиента маркетплейса для токена оператора
type UpstreamFactory func(token string) Upstream

// ProgressReporter получает результат каждого элемента по мере обработки
type ProgressReporter interface {
	Report(outcome models.ItemOutcome)
}

// ProgressFunc адаптер функции к ProgressReporter
type ProgressFunc func(outcome models.ItemOutcome)

func (f ProgressFunc) Report(outcome models.ItemOutcome) { f(outcome) }

type discardProgress struct{}

func (discardProgress) Report(models.ItemOutcome) {}

// EventSink принимает события жизненного цикла партии
type EventSink interface {
	Emit(ctx context.Context, event models.CloneEvent) error
}

// Sleeper ждет d или отмены контекста
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext реализация Sleeper на таймере
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pacing задержки и срок защиты от повторной публикации
type Pacing struct {
	InterItemDelay time.Duration
	PublishWarmup  time.Duration
	GuardTTL       time.Duration
}
