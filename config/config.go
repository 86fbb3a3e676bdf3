package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config содержит все настройки сервиса
type Config struct {
	AppName  string
	Version  string
	LogLevel string
	ENV      string

	Server struct {
		Host            string
		Port            int
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		ShutdownTimeout time.Duration
		RequestTimeout  time.Duration // таймаут обработки запроса оператора
	}

	Upstream struct {
		BaseURL        string
		AcceptVersion  string
		Timeout        time.Duration // 0 - без таймаута клиента
		InterItemDelay time.Duration // пауза между объявлениями в фазе черновиков
		PublishWarmup  time.Duration // ожидание обработки фото перед публикацией
	}

	Postgres PostgresConfig

	Redis struct {
		Enabled  bool
		Host     string
		Port     int
		Password string
		DB       int
	}

	Kafka struct {
		Enabled         bool     `mapstructure:"enabled"`
		Brokers         []string `mapstructure:"brokers"`
		GroupID         string   `mapstructure:"group_id"`
		EventsTopic     string   `mapstructure:"events_topic"`
		AutoOffsetReset string   `mapstructure:"auto_offset_reset"`
	}

	Metrics struct {
		Enabled  bool
		Endpoint string
		Port     int `mapstructure:"port"`
	}

	Security struct {
		TicketSecret     string
		TicketTTL        time.Duration
		CORSAllowOrigins []string
		RateLimit        int
		RateWindow       time.Duration
	}

	Keycloak KeycloakConfig
}

// PostgresConfig настройки журнала партий в PostgreSQL
type PostgresConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	Timeout  time.Duration // connect_timeout, 0 - без ограничения
	PoolSize int
}

// Load загружает конфигурацию из файла и переменных окружения
func Load(configPath string) (*Config, error) {
	configFile := "config"
	if configPath != "" {
		configFile = configPath
	}

	var cfg Config

	v := viper.New()
	v.SetConfigName(configFile)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
		}
		// Файла нет - работаем на значениях по умолчанию и переменных окружения
	}

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("ошибка десериализации конфигурации: %w", err)
	}

	cfg.ENV = v.GetString("env")
	if cfg.ENV == "" {
		cfg.ENV = "development"
		if envVar := os.Getenv("APP_ENV"); envVar != "" {
			cfg.ENV = envVar
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validate проверяет значения, без которых сервис работать не может
func (c *Config) validate() error {
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.baseURL не задан")
	}
	if c.Upstream.InterItemDelay < 0 || c.Upstream.PublishWarmup < 0 {
		return fmt.Errorf("задержки upstream не могут быть отрицательными")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers пуст при включенной kafka")
	}
	if c.Keycloak.Enabled && (c.Keycloak.ServerURL == "" || c.Keycloak.Realm == "") {
		return fmt.Errorf("keycloak.serverURL и keycloak.realm обязательны при включенном keycloak")
	}
	return nil
}

// setDefaults устанавливает значения по умолчанию
func setDefaults(v *viper.Viper) {
	// Основные настройки
	v.SetDefault("appName", "listing-cloner")
	v.SetDefault("version", "1.0.0")
	v.SetDefault("logLevel", "info")
	v.SetDefault("env", "development")

	// Настройки сервера
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", "10s")
	v.SetDefault("server.writeTimeout", "10m")
	v.SetDefault("server.shutdownTimeout", "5s")
	v.SetDefault("server.requestTimeout", "10m")

	// Настройки маркетплейса
	v.SetDefault("upstream.baseURL", "https://api.reverb.com/api")
	v.SetDefault("upstream.acceptVersion", "3.0")
	v.SetDefault("upstream.timeout", "0s")
	v.SetDefault("upstream.interItemDelay", "1s")
	v.SetDefault("upstream.publishWarmup", "10s")

	// Настройки Postgres
	v.SetDefault("postgres.enabled", false)
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "postgres")
	v.SetDefault("postgres.dbname", "cloner")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.timeout", "5s")
	v.SetDefault("postgres.poolSize", 10)

	// Настройки Redis
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Настройки Kafka
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.group_id", "listing-cloner-journal")
	v.SetDefault("kafka.events_topic", "listing-clone-events")
	v.SetDefault("kafka.auto_offset_reset", "earliest")

	// Настройки метрик
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.endpoint", "/metrics")
	v.SetDefault("metrics.port", 9090)

	// Настройки безопасности
	v.SetDefault("security.ticketSecret", "")
	v.SetDefault("security.ticketTTL", "1h")
	v.SetDefault("security.corsAllowOrigins", []string{"*"})
	v.SetDefault("security.rateLimit", 120)
	v.SetDefault("security.rateWindow", "1m")

	// Настройки Keycloak
	v.SetDefault("keycloak.enabled", false)
	v.SetDefault("keycloak.realm", "marketplace")
	v.SetDefault("keycloak.client_id", "listing-cloner")
	v.SetDefault("keycloak.required_role", "listing-cloner")
}

// bindEnvVariables привязывает переменные окружения к конфигурации
func bindEnvVariables(v *viper.Viper) {
	bindings := map[string]string{
		// Основные настройки
		"appName":  "APP_NAME",
		"version":  "APP_VERSION",
		"logLevel": "LOG_LEVEL",
		"env":      "APP_ENV",

		// Настройки сервера
		"server.host":            "SERVER_HOST",
		"server.port":            "SERVER_PORT",
		"server.readTimeout":     "SERVER_READ_TIMEOUT",
		"server.writeTimeout":    "SERVER_WRITE_TIMEOUT",
		"server.shutdownTimeout": "SERVER_SHUTDOWN_TIMEOUT",
		"server.requestTimeout":  "SERVER_REQUEST_TIMEOUT",

		// Настройки маркетплейса
		"upstream.baseURL":        "UPSTREAM_BASE_URL",
		"upstream.acceptVersion":  "UPSTREAM_ACCEPT_VERSION",
		"upstream.timeout":        "UPSTREAM_TIMEOUT",
		"upstream.interItemDelay": "UPSTREAM_INTER_ITEM_DELAY",
		"upstream.publishWarmup":  "UPSTREAM_PUBLISH_WARMUP",

		// Настройки Postgres
		"postgres.enabled":  "POSTGRES_ENABLED",
		"postgres.host":     "POSTGRES_HOST",
		"postgres.port":     "POSTGRES_PORT",
		"postgres.user":     "POSTGRES_USER",
		"postgres.password": "POSTGRES_PASSWORD",
		"postgres.dbname":   "POSTGRES_DBNAME",
		"postgres.sslmode":  "POSTGRES_SSLMODE",
		"postgres.timeout":  "POSTGRES_TIMEOUT",
		"postgres.poolSize": "POSTGRES_POOL_SIZE",

		// Настройки Redis
		"redis.enabled":  "REDIS_ENABLED",
		"redis.host":     "REDIS_HOST",
		"redis.port":     "REDIS_PORT",
		"redis.password": "REDIS_PASSWORD",
		"redis.db":       "REDIS_DB",

		// Настройки Kafka
		"kafka.enabled":           "KAFKA_ENABLED",
		"kafka.brokers":           "KAFKA_BROKERS",
		"kafka.group_id":          "KAFKA_GROUP_ID",
		"kafka.events_topic":      "KAFKA_EVENTS_TOPIC",
		"kafka.auto_offset_reset": "KAFKA_AUTO_OFFSET_RESET",

		// Настройки метрик
		"metrics.enabled":  "METRICS_ENABLED",
		"metrics.endpoint": "METRICS_ENDPOINT",
		"metrics.port":     "METRICS_PORT",

		// Настройки безопасности
		"security.ticketSecret":     "TICKET_SECRET",
		"security.ticketTTL":        "TICKET_TTL",
		"security.corsAllowOrigins": "CORS_ALLOW_ORIGINS",
		"security.rateLimit":        "RATE_LIMIT",
		"security.rateWindow":       "RATE_WINDOW",

		// Настройки Keycloak
		"keycloak.enabled":       "KEYCLOAK_ENABLED",
		"keycloak.server_url":    "KEYCLOAK_SERVER_URL",
		"keycloak.realm":         "KEYCLOAK_REALM",
		"keycloak.client_id":     "KEYCLOAK_CLIENT_ID",
		"keycloak.client_secret": "KEYCLOAK_CLIENT_SECRET",
		"keycloak.redirect_url":  "KEYCLOAK_REDIRECT_URL",
		"keycloak.required_role": "KEYCLOAK_REQUIRED_ROLE",
	}

	for key, env := range bindings {
		_ = v.BindEnv(key, env)
	}
}
