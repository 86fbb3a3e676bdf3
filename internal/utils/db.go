package utils

import (
	"strconv"
	"strings"
	"time"

	"github.com/athebyme/listing-cloner/config"
)

// GenerateConnectionString собирает DSN журнала в формате key=value.
// Значения с пробелами и кавычками экранируются
func GenerateConnectionString(cfg config.PostgresConfig) (string, error) {
	switch {
	case cfg.Host == "":
		return "", ErrStorageEmptyHostName
	case cfg.Port <= 0 || cfg.Port > 65535:
		return "", ErrStorageInvalidPortNumber
	case cfg.User == "":
		return "", ErrStorageEmptyUsername
	case cfg.Password == "":
		return "", ErrStorageEmptyPassword
	case cfg.DBName == "":
		return "", ErrStorageInvalidDatabaseName
	case cfg.SSLMode == "":
		return "", ErrStorageInvalidSslMode
	case cfg.Timeout < 0:
		return "", ErrStorageInvalidTimeout
	case cfg.PoolSize < 0:
		return "", ErrStorageInvalidPoolSize
	}

	params := [][2]string{
		{"host", cfg.Host},
		{"port", strconv.Itoa(cfg.Port)},
		{"user", cfg.User},
		{"password", cfg.Password},
		{"dbname", cfg.DBName},
		{"sslmode", cfg.SSLMode},
	}
	if cfg.Timeout > 0 {
		// connect_timeout в целых секундах, меньше секунды округляем вверх
		secs := int((cfg.Timeout + time.Second - 1) / time.Second)
		params = append(params, [2]string{"connect_timeout", strconv.Itoa(secs)})
	}

	parts := make([]string, 0, len(params))
	for _, p := range params {
		parts = append(parts, p[0]+"="+quoteConnValue(p[1]))
	}
	return strings.Join(parts, " "), nil
}

func quoteConnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
