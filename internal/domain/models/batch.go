package models

import "time"

// BatchState состояние партии клонирования
type BatchState string

const (
	StateIdle                        BatchState = "idle"
	StateRunning                     BatchState = "running"
	StateAwaitingPublishConfirmation BatchState = "awaiting_publish_confirmation"
	StatePublishing                  BatchState = "publishing"
)

// ItemStatus результат обработки одного элемента партии
type ItemStatus string

const (
	ItemCreated           ItemStatus = "created"
	ItemSkippedInvalidURL ItemStatus = "skipped_invalid_url"
	ItemFetchNotFound     ItemStatus = "fetch_not_found"
	ItemFetchFailed       ItemStatus = "fetch_failed"
	ItemCreateFailed      ItemStatus = "create_failed"
	ItemPublished         ItemStatus = "published"
	ItemPublishFailed     ItemStatus = "publish_failed"
)

// ItemOutcome описывает результат по одному URL или черновику
type ItemOutcome struct {
	Position        int        `json:"position"`
	URL             string     `json:"url,omitempty"`
	SourceListingID string     `json:"source_listing_id,omitempty"`
	DraftID         string     `json:"draft_id,omitempty"`
	Status          ItemStatus `json:"status"`
	Message         string     `json:"message,omitempty"`
	Progress        float64    `json:"progress"` // доля выполненной фазы после этого элемента
}

// DraftBatch партия созданных черновиков, ожидающих публикации.
// Принадлежит вызывающей стороне: возвращается из фазы черновиков
// и передается на вход фазе публикации
type DraftBatch struct {
	ID                string        `json:"batch_id"`
	ShippingProfileID int64         `json:"shipping_profile_id"`
	DraftIDs          []string      `json:"draft_ids"`
	Items             []ItemOutcome `json:"items,omitempty"`
	State             BatchState    `json:"state"`
	Ticket            string        `json:"ticket,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
}

// Pending сообщает, есть ли в партии черновики для публикации
func (b *DraftBatch) Pending() bool {
	return b != nil && len(b.DraftIDs) > 0
}

// Clear очищает партию после фазы публикации
func (b *DraftBatch) Clear() {
	b.DraftIDs = []string{}
	b.Ticket = ""
	b.State = StateIdle
}

// PublishReport итог фазы публикации
type PublishReport struct {
	BatchID         string        `json:"batch_id"`
	Published       []string      `json:"published"`
	Failed          []string      `json:"failed"`
	Items           []ItemOutcome `json:"items"`
	AlreadyConsumed bool          `json:"already_consumed"`
	Batch           *DraftBatch   `json:"batch"`
}
