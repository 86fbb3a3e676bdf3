package api

import (
	"net/http"
	"time"

	"github.com/athebyme/listing-cloner/internal/api/handlers"
	"github.com/athebyme/listing-cloner/internal/api/middleware"
	"github.com/athebyme/listing-cloner/pkg/auth"
	"github.com/athebyme/listing-cloner/pkg/interfaces"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/athebyme/listing-cloner/docs"
)

// RouterConfig параметры маршрутизатора
type RouterConfig struct {
	CORSAllowOrigins []string
	RequestTimeout   time.Duration
	RateLimit        int
	RateWindow       time.Duration
	// RequiredRole роль оператора; пустая строка - достаточно валидного токена
	RequiredRole string
}

// SetupRouter настраивает маршрутизатор. authPort и loginFlow равны nil,
// когда аутентификация операторов выключена
func SetupRouter(
	batchHandler *handlers.BatchHandler,
	authPort interfaces.AuthPort,
	loginFlow handlers.LoginFlow,
	logger interfaces.LoggerPort,
	cfg RouterConfig,
) *chi.Mux {
	r := chi.NewRouter()

	// Глобальные middleware
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Metrics)
	r.Use(middleware.CORS(cfg.CORSAllowOrigins))
	r.Use(middleware.Tracing)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RateLimiter(cfg.RateLimit, cfg.RateWindow))

	r.Method(http.MethodGet, "/health", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))
	r.Method(http.MethodHead, "/health", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	if loginFlow != nil {
		authHandler := handlers.NewAuthHandler(loginFlow, logger)
		r.Route("/auth", func(r chi.Router) {
			r.Get("/login", authHandler.Login)
			r.Get("/callback", authHandler.Callback)
		})
	}

	r.Route("/api/v1", func(r chi.Router) {
		if authPort != nil {
			r.Use(auth.AuthMiddleware(authPort, logger))
			if cfg.RequiredRole != "" {
				r.Use(auth.RequireRole(authPort, cfg.RequiredRole))
			}
		}

		r.Route("/batches", func(r chi.Router) {
			// Фазы клонирования выполняются долго: пауза между объявлениями и ожидание фото
			r.With(middleware.Timeout(cfg.RequestTimeout)).Post("/", batchHandler.CreateBatch)
			r.With(middleware.Timeout(cfg.RequestTimeout)).Post("/publish", batchHandler.PublishBatch)

			r.Get("/{id}", batchHandler.GetBatch)
			r.Get("/{id}/events", batchHandler.ListBatchEvents)
		})
	})

	return r
}
