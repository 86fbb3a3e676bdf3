package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/athebyme/listing-cloner/pkg/errors"
	"github.com/athebyme/listing-cloner/pkg/interfaces"
	"github.com/go-redis/redis/v8"
)

const keyPrefix = "cloner:"

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(ctx context.Context, host string, port int, password string, db int) (interfaces.CachePort, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Password:     password,
		DB:           db,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

func (r *RedisCache) buildKey(key string) string {
	return keyPrefix + key
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, r.buildKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, errors.ErrCacheMiss
		}
		return nil, err
	}
	return val, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	return r.client.Set(ctx, r.buildKey(key), value, expiration).Err()
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.buildKey(key)).Err()
}

// Lock занимает ключ через SETNX, срок жизни ограничивает expiration
func (r *RedisCache) Lock(ctx context.Context, key string, expiration time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.buildKey(key), time.Now().UTC().Format(time.RFC3339), expiration).Result()
	if err != nil {
		return false, fmt.Errorf("ошибка захвата ключа %s: %w", key, err)
	}
	return ok, nil
}

func (r *RedisCache) Unlock(ctx context.Context, key string) error {
	return r.Delete(ctx, key)
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
