package messaging

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/athebyme/listing-cloner/pkg/interfaces"
	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/google/uuid"
)

// KafkaMessaging реализация MessagingPort с использованием Kafka
type KafkaMessaging struct {
	producer        *kafka.Producer
	consumers       map[string]*kafka.Consumer
	consumersMutex  sync.RWMutex
	brokers         string
	groupID         string
	autoOffsetReset string
	logger          interfaces.LoggerPort
}

// NewKafkaMessaging создает новый экземпляр KafkaMessaging
func NewKafkaMessaging(brokers []string, groupID, autoOffsetReset string, logger interfaces.LoggerPort) (*KafkaMessaging, error) {
	servers := strings.Join(brokers, ",")

	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":            servers,
		"client.id":                    "listing-cloner-producer",
		"acks":                         "all",
		"retries":                      5,
		"retry.backoff.ms":             500,
		"compression.type":             "snappy",
		"linger.ms":                    10,
		"message.max.bytes":            1000000,
		"queue.buffering.max.messages": 100000,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Kafka producer: %w", err)
	}

	k := &KafkaMessaging{
		producer:        producer,
		consumers:       make(map[string]*kafka.Consumer),
		brokers:         servers,
		groupID:         groupID,
		autoOffsetReset: autoOffsetReset,
		logger:          logger,
	}

	go k.watchDeliveries()

	return k, nil
}

// watchDeliveries читает отчеты о доставке, иначе канал событий producer переполнится
func (k *KafkaMessaging) watchDeliveries() {
	for ev := range k.producer.Events() {
		m, ok := ev.(*kafka.Message)
		if !ok || m.TopicPartition.Error == nil {
			continue
		}
		k.logger.Error("Сообщение не доставлено в Kafka",
			interfaces.LogField{Key: "topic", Value: *m.TopicPartition.Topic},
			interfaces.LogField{Key: "key", Value: string(m.Key)},
			interfaces.LogField{Key: "error", Value: m.TopicPartition.Error.Error()},
		)
	}
}

// messageToKafkaMessage преобразует сообщение в kafka.Message
func messageToKafkaMessage(topic string, message []byte, key string, headers map[string]string) *kafka.Message {
	kafkaHeaders := make([]kafka.Header, 0, len(headers)+2)
	for k, v := range headers {
		kafkaHeaders = append(kafkaHeaders, kafka.Header{Key: k, Value: []byte(v)})
	}

	kafkaHeaders = append(kafkaHeaders,
		kafka.Header{Key: "message_id", Value: []byte(uuid.New().String())},
		kafka.Header{Key: "timestamp", Value: []byte(strconv.FormatInt(time.Now().UnixNano(), 10))},
	)

	var keyBytes []byte
	if key != "" {
		keyBytes = []byte(key)
	}

	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Value:          message,
		Key:            keyBytes,
		Headers:        kafkaHeaders,
	}
}

// traceKeys ключи контекста, которые переезжают в заголовки сообщения
var traceKeys = []string{"request_id", "trace_id"}

func headersFromContext(ctx context.Context) map[string]string {
	headers := make(map[string]string, len(traceKeys))
	for _, key := range traceKeys {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			headers[key] = v
		}
	}
	return headers
}

// kafkaMessageToMessage преобразует kafka.Message в Message
func kafkaMessageToMessage(msg *kafka.Message) *interfaces.Message {
	headers := make(map[string]string, len(msg.Headers))
	for _, header := range msg.Headers {
		headers[header.Key] = string(header.Value)
	}

	var key string
	if msg.Key != nil {
		key = string(msg.Key)
	}

	publishedAt := msg.Timestamp
	if ts, err := strconv.ParseInt(headers["timestamp"], 10, 64); err == nil {
		publishedAt = time.Unix(0, ts)
	}

	var topic string
	if msg.TopicPartition.Topic != nil {
		topic = *msg.TopicPartition.Topic
	}

	return &interfaces.Message{
		ID:          headers["message_id"],
		Topic:       topic,
		Key:         key,
		Value:       msg.Value,
		Headers:     headers,
		PublishedAt: publishedAt,
	}
}

// Publish публикует сообщение в указанную тему
func (k *KafkaMessaging) Publish(ctx context.Context, topic string, message []byte) error {
	return k.PublishWithKey(ctx, topic, "", message)
}

// PublishWithKey публикует сообщение с указанным ключом
func (k *KafkaMessaging) PublishWithKey(ctx context.Context, topic string, key string, message []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := messageToKafkaMessage(topic, message, key, headersFromContext(ctx))
	if err := k.producer.Produce(msg, nil); err != nil {
		return fmt.Errorf("ошибка публикации в топик %s: %w", topic, err)
	}
	return nil
}

// Subscribe подписывается на указанную тему и обрабатывает сообщения с помощью handler
func (k *KafkaMessaging) Subscribe(ctx context.Context, topic string, handler interfaces.MessageHandler) (func() error, error) {
	config := &interfaces.ConsumerConfig{
		GroupID:         k.groupID,
		AutoCommit:      false,
		PollTimeout:     100 * time.Millisecond,
		RetryBackoff:    time.Second,
		AutoOffsetReset: k.autoOffsetReset,
	}
	return k.SubscribeWithConfig(ctx, topic, handler, config)
}

// SubscribeWithConfig подписывается на указанную тему с дополнительными настройками
func (k *KafkaMessaging) SubscribeWithConfig(ctx context.Context, topic string, handler interfaces.MessageHandler, config *interfaces.ConsumerConfig) (func() error, error) {
	offsetReset := config.AutoOffsetReset
	if offsetReset == "" {
		offsetReset = "latest"
	}

	kafkaConfig := &kafka.ConfigMap{
		"bootstrap.servers":     k.brokers,
		"group.id":              config.GroupID,
		"auto.offset.reset":     offsetReset,
		"enable.auto.commit":    config.AutoCommit,
		"session.timeout.ms":    30000,
		"max.poll.interval.ms":  300000,
		"heartbeat.interval.ms": 3000,
		"fetch.wait.max.ms":     500,
	}
	if config.AutoCommit && config.AutoCommitInterval > 0 {
		_ = kafkaConfig.SetKey("auto.commit.interval.ms", int(config.AutoCommitInterval.Milliseconds()))
	}

	consumer, err := kafka.NewConsumer(kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Kafka consumer: %w", err)
	}

	if err := consumer.Subscribe(topic, nil); err != nil {
		consumer.Close()
		return nil, fmt.Errorf("ошибка подписки на топик %s: %w", topic, err)
	}

	handlerID := uuid.New().String()

	k.consumersMutex.Lock()
	k.consumers[handlerID] = consumer
	k.consumersMutex.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		k.consumeMessages(ctx, consumer, handler, config)
	}()

	var once sync.Once
	unsubscribe := func() error {
		var closeErr error
		once.Do(func() {
			k.consumersMutex.Lock()
			delete(k.consumers, handlerID)
			k.consumersMutex.Unlock()

			<-done
			closeErr = consumer.Close()
		})
		return closeErr
	}

	return unsubscribe, nil
}

// offsetController часть kafka.Consumer, нужная для подтверждения и повтора сообщений
type offsetController interface {
	CommitMessage(m *kafka.Message) ([]kafka.TopicPartition, error)
	Seek(partition kafka.TopicPartition, timeoutMs int) error
}

// consumeMessages обрабатывает сообщения из Kafka до отмены контекста.
// Сообщение с ошибкой обработки не подтверждается: партиция откатывается
// к нему и читается снова после паузы RetryBackoff
func (k *KafkaMessaging) consumeMessages(ctx context.Context, consumer *kafka.Consumer, handler interfaces.MessageHandler, config *interfaces.ConsumerConfig) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ev := consumer.Poll(int(config.PollTimeout.Milliseconds()))
		if ev == nil {
			continue
		}

		switch e := ev.(type) {
		case *kafka.Message:
			retry, err := k.settle(ctx, consumer, e, handler(ctx, kafkaMessageToMessage(e)), config)
			if err != nil {
				k.logger.ErrorWithContext(ctx, "Потребитель остановлен, сообщение не удалось вернуть в очередь",
					interfaces.LogField{Key: "topic", Value: e.TopicPartition.String()},
					interfaces.LogField{Key: "error", Value: err.Error()},
				)
				return
			}
			if retry {
				select {
				case <-ctx.Done():
					return
				case <-time.After(config.RetryBackoff):
				}
			}

		case kafka.Error:
			k.logger.ErrorWithContext(ctx, "Ошибка Kafka",
				interfaces.LogField{Key: "code", Value: e.Code().String()},
				interfaces.LogField{Key: "error", Value: e.Error()},
			)
			if e.Code() == kafka.ErrAllBrokersDown {
				return
			}

		default:
			k.logger.Debug("Событие Kafka",
				interfaces.LogField{Key: "event", Value: e.String()},
			)
		}
	}
}

// settle завершает обработку сообщения. Успех подтверждается (в ручном режиме),
// ошибка откатывает партицию к смещению сообщения, retry=true. Ошибка Seek
// возвращается: продолжать чтение значит потерять сообщение
func (k *KafkaMessaging) settle(ctx context.Context, consumer offsetController, msg *kafka.Message, handlerErr error, config *interfaces.ConsumerConfig) (retry bool, err error) {
	var topic string
	if msg.TopicPartition.Topic != nil {
		topic = *msg.TopicPartition.Topic
	}

	if handlerErr != nil {
		k.logger.ErrorWithContext(ctx, "Ошибка обработки сообщения, повтор",
			interfaces.LogField{Key: "topic", Value: topic},
			interfaces.LogField{Key: "partition", Value: msg.TopicPartition.Partition},
			interfaces.LogField{Key: "offset", Value: msg.TopicPartition.Offset.String()},
			interfaces.LogField{Key: "error", Value: handlerErr.Error()},
		)
		if err := consumer.Seek(msg.TopicPartition, 0); err != nil {
			return false, fmt.Errorf("ошибка отката к смещению %s: %w", msg.TopicPartition.Offset.String(), err)
		}
		return true, nil
	}

	if !config.AutoCommit {
		if _, err := consumer.CommitMessage(msg); err != nil {
			k.logger.WarnWithContext(ctx, "Ошибка подтверждения сообщения",
				interfaces.LogField{Key: "topic", Value: topic},
				interfaces.LogField{Key: "error", Value: err.Error()},
			)
		}
	}
	return false, nil
}

// EnsureTopic создает тему, если её ещё нет
func (k *KafkaMessaging) EnsureTopic(ctx context.Context, topic string, partitions int, replicationFactor int) error {
	adminClient, err := kafka.NewAdminClientFromProducer(k.producer)
	if err != nil {
		return fmt.Errorf("ошибка создания Kafka admin client: %w", err)
	}
	defer adminClient.Close()

	result, err := adminClient.CreateTopics(ctx, []kafka.TopicSpecification{{
		Topic:             topic,
		NumPartitions:     partitions,
		ReplicationFactor: replicationFactor,
	}}, kafka.SetAdminOperationTimeout(30*time.Second))
	if err != nil {
		return fmt.Errorf("ошибка создания топика %s: %w", topic, err)
	}

	for _, r := range result {
		if code := r.Error.Code(); code != kafka.ErrNoError && code != kafka.ErrTopicAlreadyExists {
			return fmt.Errorf("ошибка создания топика %s: %s", r.Topic, r.Error.String())
		}
	}

	return nil
}

// Close закрывает соединение с системой обмена сообщениями
func (k *KafkaMessaging) Close() error {
	k.consumersMutex.Lock()
	for id, consumer := range k.consumers {
		consumer.Close()
		delete(k.consumers, id)
	}
	k.consumersMutex.Unlock()

	// Ждем до 15 секунд для отправки всех сообщений
	k.producer.Flush(15 * 1000)
	k.producer.Close()

	return nil
}
