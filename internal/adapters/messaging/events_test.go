package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/athebyme/listing-cloner/internal/adapters/logger"
	"github.com/athebyme/listing-cloner/internal/domain/models"
	"github.com/athebyme/listing-cloner/pkg/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBroker struct {
	mu       sync.Mutex
	messages []*interfaces.Message
}

func (b *recordingBroker) Publish(ctx context.Context, topic string, message []byte) error {
	return b.PublishWithKey(ctx, topic, "", message)
}

func (b *recordingBroker) PublishWithKey(_ context.Context, topic string, key string, message []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, &interfaces.Message{Topic: topic, Key: key, Value: message})
	return nil
}

func (b *recordingBroker) Subscribe(context.Context, string, interfaces.MessageHandler) (func() error, error) {
	return func() error { return nil }, nil
}

func (b *recordingBroker) Close() error { return nil }

func TestEventPublisherKeysByBatch(t *testing.T) {
	broker := &recordingBroker{}
	publisher := NewEventPublisher(broker, "clone-events")

	err := publisher.Emit(context.Background(), models.CloneEvent{
		Type:    models.DraftCreatedEvent,
		BatchID: "batch-1",
		DraftID: "555",
		Status:  models.ItemCreated,
	})
	require.NoError(t, err)

	require.Len(t, broker.messages, 1)
	msg := broker.messages[0]
	assert.Equal(t, "clone-events", msg.Topic)
	assert.Equal(t, "batch-1", msg.Key)

	var event models.CloneEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.OccurredAt.IsZero())
	assert.Equal(t, "555", event.DraftID)
}

func TestDecodeEvent(t *testing.T) {
	event, err := DecodeEvent(&interfaces.Message{
		Topic: "clone-events",
		Key:   "batch-7",
		Value: []byte(`{"id":"e1","type":"listing_published","draft_id":"9","status":"published"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "batch-7", event.BatchID)
	assert.Equal(t, models.ListingPublishedEvent, event.Type)
	assert.Equal(t, models.ItemPublished, event.Status)

	_, err = DecodeEvent(&interfaces.Message{Value: []byte(`not json`)})
	assert.Error(t, err)

	_, err = DecodeEvent(&interfaces.Message{Value: []byte(`{"batch_id":"b"}`)})
	assert.Error(t, err)
}

type recordingRecorder struct {
	events []*models.CloneEvent
	traces []string
	err    error
}

func (r *recordingRecorder) Record(ctx context.Context, event *models.CloneEvent) error {
	trace, _ := ctx.Value("trace_id").(string)
	r.traces = append(r.traces, trace)
	r.events = append(r.events, event)
	return r.err
}

func TestJournalHandler(t *testing.T) {
	recorder := &recordingRecorder{}
	handler := JournalHandler(recorder, logger.NewNopLogger())

	err := handler(context.Background(), &interfaces.Message{
		Topic:   "clone-events",
		Key:     "batch-3",
		Value:   []byte(`{"id":"e1","type":"draft_created","draft_id":"11"}`),
		Headers: map[string]string{"trace_id": "trace-42"},
	})
	require.NoError(t, err)
	require.Len(t, recorder.events, 1)
	assert.Equal(t, "batch-3", recorder.events[0].BatchID)
	assert.Equal(t, []string{"trace-42"}, recorder.traces)

	// мусор подтверждается и не доходит до журнала
	err = handler(context.Background(), &interfaces.Message{Topic: "clone-events", Value: []byte(`{`)})
	require.NoError(t, err)
	assert.Len(t, recorder.events, 1)

	recorder.err = errors.New("db down")
	err = handler(context.Background(), &interfaces.Message{
		Topic: "clone-events",
		Value: []byte(`{"id":"e2","type":"batch_drafted","batch_id":"b"}`),
	})
	assert.EqualError(t, err, "db down")
}

func TestHeadersFromContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), "request_id", "req-1")
	ctx = context.WithValue(ctx, "trace_id", "")

	assert.Equal(t, map[string]string{"request_id": "req-1"}, headersFromContext(ctx))
}
