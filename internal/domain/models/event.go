package models

import "time"

// CloneEventType тип события клонирования
type CloneEventType = string

const (
	DraftCreatedEvent         CloneEventType = "draft_created"
	DraftSkippedEvent         CloneEventType = "draft_skipped"
	ListingPublishedEvent     CloneEventType = "listing_published"
	ListingPublishFailedEvent CloneEventType = "listing_publish_failed"
	BatchDraftedEvent         CloneEventType = "batch_drafted"
	BatchPublishedEvent       CloneEventType = "batch_published"
)

// CloneEvent событие жизненного цикла партии, уходит в брокер и журнал
type CloneEvent struct {
	ID              string         `json:"id"`
	Type            CloneEventType `json:"type"`
	BatchID         string         `json:"batch_id"`
	SourceListingID string         `json:"source_listing_id,omitempty"`
	DraftID         string         `json:"draft_id,omitempty"`
	Status          ItemStatus     `json:"status,omitempty"`
	Message         string         `json:"message,omitempty"`
	Operator        string         `json:"operator,omitempty"`
	OccurredAt      time.Time      `json:"occurred_at"`
}
