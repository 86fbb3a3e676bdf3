package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/athebyme/listing-cloner/config"
	"github.com/athebyme/listing-cloner/internal/adapters/logger"
	"github.com/athebyme/listing-cloner/internal/adapters/messaging"
	postgres "github.com/athebyme/listing-cloner/internal/adapters/storage"
	"github.com/athebyme/listing-cloner/internal/domain/services"
	"github.com/athebyme/listing-cloner/internal/utils"
	"github.com/athebyme/listing-cloner/pkg/interfaces"
	"github.com/athebyme/listing-cloner/pkg/tx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var activeWorkers = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "worker_active_goroutines",
	Help: "Количество активных горутин-обработчиков",
})

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Ошибка загрузки конфигурации: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log, err := logger.NewZapLogger(cfg.LogLevel, cfg.ENV == "production")
	if err != nil {
		fmt.Printf("Ошибка инициализации логгера: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Инициализация воркера журнала",
		interfaces.LogField{Key: "app_name", Value: cfg.AppName + "-worker"},
		interfaces.LogField{Key: "version", Value: cfg.Version},
		interfaces.LogField{Key: "env", Value: cfg.ENV},
	)

	if !cfg.Kafka.Enabled || !cfg.Postgres.Enabled {
		log.Fatal("Воркеру журнала нужны kafka.enabled и postgres.enabled")
	}

	// Запускаем HTTP сервер для метрик если они включены
	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle(cfg.Metrics.Endpoint, promhttp.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("OK"))
			})

			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			log.Info("Запуск HTTP сервера для метрик",
				interfaces.LogField{Key: "addr", Value: addr})

			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Error("Ошибка запуска HTTP сервера для метрик",
					interfaces.LogField{Key: "error", Value: err.Error()})
			}
		}()
	}

	connectionStr, err := utils.GenerateConnectionString(cfg.Postgres)
	if err != nil {
		log.Fatal("Ошибка генерации строки подключения к PostgreSQL",
			interfaces.LogField{Key: "error", Value: err.Error()})
	}

	pool, err := postgres.NewPostgresStorage(ctx, connectionStr, cfg.Postgres.PoolSize)
	if err != nil {
		log.Fatal("Ошибка инициализации хранилища",
			interfaces.LogField{Key: "error", Value: err.Error()})
	}

	journalStorage, err := postgres.NewJournalStorage(ctx, pool, tx.NewTxManager(pool, log))
	if err != nil {
		log.Fatal("Ошибка инициализации журнала",
			interfaces.LogField{Key: "error", Value: err.Error()})
	}
	defer journalStorage.Close()

	if err := journalStorage.EnsureSchema(ctx); err != nil {
		log.Fatal("Ошибка создания схемы журнала",
			interfaces.LogField{Key: "error", Value: err.Error()})
	}
	log.Info("Журнал инициализирован")

	messagingClient, err := messaging.NewKafkaMessaging(
		cfg.Kafka.Brokers,
		cfg.Kafka.GroupID,
		cfg.Kafka.AutoOffsetReset,
		log,
	)
	if err != nil {
		log.Fatal("Ошибка инициализации системы обмена сообщениями",
			interfaces.LogField{Key: "error", Value: err.Error()})
	}
	defer messagingClient.Close()

	topicCtx, topicCancel := context.WithTimeout(ctx, 30*time.Second)
	if err := messagingClient.EnsureTopic(topicCtx, cfg.Kafka.EventsTopic, 3, 1); err != nil {
		log.Warn("Не удалось проверить топик событий",
			interfaces.LogField{Key: "topic", Value: cfg.Kafka.EventsTopic},
			interfaces.LogField{Key: "error", Value: err.Error()})
	}
	topicCancel()
	log.Info("Система обмена сообщениями инициализирована")

	journalService := services.NewJournalService(journalStorage, log)

	done := make(chan struct{})
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup
	subscribeToCloneEvents(ctx, messagingClient, cfg.Kafka.EventsTopic, journalService, log, &wg)

	go func() {
		<-quit
		log.Info("Получен сигнал завершения, выполняется graceful shutdown...")
		cancel()
		wg.Wait()
		close(done)
	}()

	log.Info("Воркер запущен и готов к обработке сообщений")
	<-done
	log.Info("Воркер корректно завершил работу")
}

// Подписка на события клонирования
func subscribeToCloneEvents(ctx context.Context, messagingClient interfaces.MessagingPort, topic string,
	journal messaging.EventRecorder, logger interfaces.LoggerPort, wg *sync.WaitGroup) {

	recordHandler := messaging.JournalHandler(journal, logger)
	handler := func(ctx context.Context, msg *interfaces.Message) error {
		activeWorkers.Inc()
		defer activeWorkers.Dec()
		return recordHandler(ctx, msg)
	}

	wg.Add(1)

	go func() {
		defer wg.Done()

		unsubscribe, err := messagingClient.Subscribe(ctx, topic, handler)
		if err != nil {
			logger.Error("Ошибка подписки на события клонирования",
				interfaces.LogField{Key: "topic", Value: topic},
				interfaces.LogField{Key: "error", Value: err.Error()})
			return
		}
		defer unsubscribe()

		logger.Info("Подписка на события клонирования установлена",
			interfaces.LogField{Key: "topic", Value: topic})

		<-ctx.Done()
		logger.Info("Отмена подписки на события клонирования")
	}()
}
