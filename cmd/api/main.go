package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/athebyme/listing-cloner/config"
	"github.com/athebyme/listing-cloner/internal/adapters/cache"
	"github.com/athebyme/listing-cloner/internal/adapters/logger"
	"github.com/athebyme/listing-cloner/internal/adapters/messaging"
	"github.com/athebyme/listing-cloner/internal/adapters/reverb"
	postgres "github.com/athebyme/listing-cloner/internal/adapters/storage"
	"github.com/athebyme/listing-cloner/internal/api"
	"github.com/athebyme/listing-cloner/internal/api/handlers"
	"github.com/athebyme/listing-cloner/internal/domain/services"
	"github.com/athebyme/listing-cloner/internal/security"
	"github.com/athebyme/listing-cloner/internal/utils"
	"github.com/athebyme/listing-cloner/pkg/auth"
	"github.com/athebyme/listing-cloner/pkg/interfaces"
	"github.com/athebyme/listing-cloner/pkg/tx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

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

	log.Info("Инициализация сервиса",
		interfaces.LogField{Key: "app_name", Value: cfg.AppName},
		interfaces.LogField{Key: "version", Value: cfg.Version},
		interfaces.LogField{Key: "env", Value: cfg.ENV},
	)

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg, log)
	}

	testCtx, testCancel := context.WithTimeout(ctx, 5*time.Second)
	defer testCancel()

	// Защита от повторной публикации: Redis для нескольких реплик, иначе память процесса
	var guard interfaces.CachePort
	if cfg.Redis.Enabled {
		guard, err = cache.NewRedisCache(ctx, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal("Ошибка инициализации кэша", interfaces.LogField{Key: "error", Value: err.Error()})
		}
		if err := checkCacheConnection(testCtx, guard); err != nil {
			log.Fatal("Ошибка подключения к Redis", interfaces.LogField{Key: "error", Value: err.Error()})
		}
		log.Info("Соединение с Redis проверено")
	} else {
		guard = cache.NewMemoryCache(time.Minute)
		log.Info("Redis выключен, защита публикации хранится в памяти процесса")
	}
	defer guard.Close()

	var (
		events          services.EventSink = messaging.NopPublisher{}
		messagingClient interfaces.MessagingPort
	)
	if cfg.Kafka.Enabled {
		kafkaClient, err := messaging.NewKafkaMessaging(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.AutoOffsetReset, log)
		if err != nil {
			log.Fatal("Ошибка инициализации системы обмена сообщениями", interfaces.LogField{Key: "error", Value: err.Error()})
		}
		messagingClient = kafkaClient
		events = messaging.NewEventPublisher(kafkaClient, cfg.Kafka.EventsTopic)
		log.Info("Система обмена сообщениями инициализирована",
			interfaces.LogField{Key: "topic", Value: cfg.Kafka.EventsTopic})
	}

	var (
		journal handlers.BatchJournal
		storage interfaces.StoragePort
	)
	if cfg.Postgres.Enabled {
		journalStorage, err := openJournal(ctx, cfg, log)
		if err != nil {
			log.Fatal("Ошибка инициализации журнала", interfaces.LogField{Key: "error", Value: err.Error()})
		}
		if err := journalStorage.Ping(testCtx); err != nil {
			log.Fatal("Ошибка подключения к PostgreSQL", interfaces.LogField{Key: "error", Value: err.Error()})
		}
		journal = journalStorage
		storage = journalStorage
		log.Info("Журнал партий инициализирован")
	}

	tickets, err := security.NewTicketManager(cfg.Security.TicketSecret, cfg.Security.TicketTTL)
	if err != nil {
		log.Fatal("Ошибка инициализации билетов партий", interfaces.LogField{Key: "error", Value: err.Error()})
	}
	if cfg.Security.TicketSecret == "" {
		log.Warn("security.ticketSecret не задан, билеты действительны только до перезапуска")
	}

	httpClient := reverb.NewHTTPClient(cfg.Upstream.Timeout)
	upstreams := func(token string) services.Upstream {
		return reverb.New(cfg.Upstream.BaseURL, cfg.Upstream.AcceptVersion, token, httpClient)
	}

	cloneService := services.NewCloneService(upstreams, guard, events, log, services.Pacing{
		InterItemDelay: cfg.Upstream.InterItemDelay,
		PublishWarmup:  cfg.Upstream.PublishWarmup,
		GuardTTL:       cfg.Security.TicketTTL,
	})
	log.Info("Сервис клонирования инициализирован")

	var (
		authPort  interfaces.AuthPort
		loginFlow handlers.LoginFlow
	)
	if cfg.Keycloak.Enabled {
		keycloakClient, err := auth.NewKeycloakClient(ctx, cfg.Keycloak.GetKeycloakConfig())
		if err != nil {
			log.Fatal("Ошибка инициализации Keycloak", interfaces.LogField{Key: "error", Value: err.Error()})
		}
		authPort = keycloakClient
		loginFlow = keycloakClient
		log.Info("Аутентификация операторов через Keycloak включена")
	}

	batchHandler := handlers.NewBatchHandler(cloneService, tickets, journal, log)
	router := api.SetupRouter(batchHandler, authPort, loginFlow, log, api.RouterConfig{
		CORSAllowOrigins: cfg.Security.CORSAllowOrigins,
		RequestTimeout:   cfg.Server.RequestTimeout,
		RateLimit:        cfg.Security.RateLimit,
		RateWindow:       cfg.Security.RateWindow,
		RequiredRole:     cfg.Keycloak.RequiredRole,
	})
	log.Info("Маршрутизатор настроен")

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan struct{})
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("Сервер запущен", interfaces.LogField{Key: "address", Value: server.Addr})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Ошибка запуска сервера", interfaces.LogField{Key: "error", Value: err.Error()})
		}
	}()

	go func() {
		<-quit
		log.Info("Получен сигнал завершения, выполняется graceful shutdown...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("Ошибка при graceful shutdown", interfaces.LogField{Key: "error", Value: err.Error()})
		}
		log.Info("HTTP сервер остановлен")

		// Прерываем фазы, не успевшие завершиться за время shutdown
		cancel()

		log.Info("Закрытие соединений с зависимостями...")

		if messagingClient != nil {
			if err := messagingClient.Close(); err != nil {
				log.Error("Ошибка при закрытии Kafka", interfaces.LogField{Key: "error", Value: err.Error()})
			}
		}

		if storage != nil {
			if err := storage.Close(); err != nil {
				log.Error("Ошибка при закрытии БД", interfaces.LogField{Key: "error", Value: err.Error()})
			}
		}

		close(done)
	}()

	<-done
	log.Info("Сервер корректно завершил работу")
}

func serveMetrics(cfg *config.Config, log interfaces.LoggerPort) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Endpoint, promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
	log.Info("Запуск HTTP сервера для метрик", interfaces.LogField{Key: "addr", Value: addr})

	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("Ошибка запуска HTTP сервера для метрик", interfaces.LogField{Key: "error", Value: err.Error()})
	}
}

// openJournal подключается к PostgreSQL и создает схему журнала
func openJournal(ctx context.Context, cfg *config.Config, log interfaces.LoggerPort) (*postgres.JournalStorage, error) {
	connStr, err := utils.GenerateConnectionString(cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("ошибка генерации строки подключения: %w", err)
	}

	pool, err := postgres.NewPostgresStorage(ctx, connStr, cfg.Postgres.PoolSize)
	if err != nil {
		return nil, err
	}

	journal, err := postgres.NewJournalStorage(ctx, pool, tx.NewTxManager(pool, log))
	if err != nil {
		pool.Close()
		return nil, err
	}

	if err := journal.EnsureSchema(ctx); err != nil {
		journal.Close()
		return nil, err
	}
	return journal, nil
}

// Проверка соединения с кэшем: запись, чтение и удаление тестового ключа
func checkCacheConnection(ctx context.Context, cacheClient interfaces.CachePort) error {
	testKey := "test:connection"
	testValue := []byte("test-value")

	if err := cacheClient.Set(ctx, testKey, testValue, 10*time.Second); err != nil {
		return fmt.Errorf("ошибка записи в Redis: %w", err)
	}

	value, err := cacheClient.Get(ctx, testKey)
	if err != nil {
		return fmt.Errorf("ошибка чтения из Redis: %w", err)
	}
	if string(value) != string(testValue) {
		return fmt.Errorf("некорректное значение из Redis: получено %s, ожидалось %s",
			string(value), string(testValue))
	}

	if err := cacheClient.Delete(ctx, testKey); err != nil {
		return fmt.Errorf("ошибка удаления из Redis: %w", err)
	}
	return nil
}
