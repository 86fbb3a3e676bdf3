package utils

import (
	"testing"
	"time"

	"github.com/athebyme/listing-cloner/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func journalConfig() config.PostgresConfig {
	return config.PostgresConfig{
		Host:     "db",
		Port:     5432,
		User:     "cloner",
		Password: "secret",
		DBName:   "cloner",
		SSLMode:  "disable",
		Timeout:  5 * time.Second,
		PoolSize: 10,
	}
}

func TestGenerateConnectionString(t *testing.T) {
	conn, err := GenerateConnectionString(journalConfig())
	require.NoError(t, err)
	assert.Equal(t, "host=db port=5432 user=cloner password=secret dbname=cloner sslmode=disable connect_timeout=5", conn)

	cfg := journalConfig()
	cfg.Timeout = 0
	conn, err = GenerateConnectionString(cfg)
	require.NoError(t, err)
	assert.NotContains(t, conn, "connect_timeout")

	cfg.Timeout = 300 * time.Millisecond
	conn, err = GenerateConnectionString(cfg)
	require.NoError(t, err)
	assert.Contains(t, conn, "connect_timeout=1")
}

func TestGenerateConnectionStringQuotesValues(t *testing.T) {
	cfg := journalConfig()
	cfg.Password = `p@ss w'rd\x`
	cfg.Timeout = 0

	conn, err := GenerateConnectionString(cfg)
	require.NoError(t, err)
	assert.Equal(t, `host=db port=5432 user=cloner password='p@ss w\'rd\\x' dbname=cloner sslmode=disable`, conn)
}

func TestGenerateConnectionStringValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.PostgresConfig)
		want   error
	}{
		{"empty host", func(c *config.PostgresConfig) { c.Host = "" }, ErrStorageEmptyHostName},
		{"bad port", func(c *config.PostgresConfig) { c.Port = 70000 }, ErrStorageInvalidPortNumber},
		{"zero port", func(c *config.PostgresConfig) { c.Port = 0 }, ErrStorageInvalidPortNumber},
		{"empty user", func(c *config.PostgresConfig) { c.User = "" }, ErrStorageEmptyUsername},
		{"empty password", func(c *config.PostgresConfig) { c.Password = "" }, ErrStorageEmptyPassword},
		{"empty db", func(c *config.PostgresConfig) { c.DBName = "" }, ErrStorageInvalidDatabaseName},
		{"empty ssl", func(c *config.PostgresConfig) { c.SSLMode = "" }, ErrStorageInvalidSslMode},
		{"negative timeout", func(c *config.PostgresConfig) { c.Timeout = -time.Second }, ErrStorageInvalidTimeout},
		{"negative pool", func(c *config.PostgresConfig) { c.PoolSize = -1 }, ErrStorageInvalidPoolSize},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := journalConfig()
			tc.mutate(&cfg)
			_, err := GenerateConnectionString(cfg)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}
