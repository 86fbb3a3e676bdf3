// Package metrics объявляет метрики Prometheus сервиса
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// метрики HTTP API
var (
	HTTPDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_durations_seconds",
		Help:    "Длительность HTTP запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"path", "method", "status"})

	RequestsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Общее количество HTTP запросов",
	}, []string{"path", "method", "status"})

	ActiveRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "http_active_requests",
		Help: "Количество активных HTTP запросов",
	})
)

// метрики клонирования
var (
	DraftsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cloner_drafts_total",
		Help: "Результаты обработки URL в фазе черновиков",
	}, []string{"status"})

	PublishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cloner_publish_total",
		Help: "Результаты публикации черновиков",
	}, []string{"status"})

	UpstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cloner_upstream_request_duration_seconds",
		Help:    "Длительность запросов к маркетплейсу",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "status"})
)

// метрики воркера
var (
	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_events_processed_total",
		Help: "Общее количество обработанных событий",
	}, []string{"type", "status"})

	EventProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "worker_event_processing_duration_seconds",
		Help:    "Длительность обработки событий",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})
)
