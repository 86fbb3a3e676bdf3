package cache

import (
	"context"
	"time"

	"github.com/athebyme/listing-cloner/pkg/errors"
	"github.com/athebyme/listing-cloner/pkg/interfaces"
	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache хранит ключи в памяти процесса. Используется, когда Redis выключен
type MemoryCache struct {
	items *gocache.Cache
}

// NewMemoryCache создает кэш в памяти с заданным интервалом очистки
func NewMemoryCache(cleanupInterval time.Duration) interfaces.CachePort {
	return &MemoryCache{
		items: gocache.New(gocache.NoExpiration, cleanupInterval),
	}
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	val, ok := m.items.Get(key)
	if !ok {
		return nil, errors.ErrCacheMiss
	}
	return val.([]byte), nil
}

func (m *MemoryCache) Set(_ context.Context, key string, value []byte, expiration time.Duration) error {
	m.items.Set(key, value, ttl(expiration))
	return nil
}

func (m *MemoryCache) Delete(_ context.Context, key string) error {
	m.items.Delete(key)
	return nil
}

// Lock атомарно добавляет ключ; Add падает, если ключ уже существует
func (m *MemoryCache) Lock(_ context.Context, key string, expiration time.Duration) (bool, error) {
	if err := m.items.Add(key, []byte(time.Now().UTC().Format(time.RFC3339)), ttl(expiration)); err != nil {
		return false, nil
	}
	return true, nil
}

func (m *MemoryCache) Unlock(_ context.Context, key string) error {
	m.items.Delete(key)
	return nil
}

func (m *MemoryCache) Close() error {
	m.items.Flush()
	return nil
}

// 0 в CachePort означает "без срока"
func ttl(expiration time.Duration) time.Duration {
	if expiration <= 0 {
		return gocache.NoExpiration
	}
	return expiration
}
