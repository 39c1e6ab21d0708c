package store

import (
	"context"
	"encoding/json"
	"fmt"

	"bloomsync/internal/config"
	"bloomsync/internal/models"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKey = "bloomsync:pending_mutations"

// RedisStore keeps the queue under a single redis key as a JSON document.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, key: defaultRedisKey}
}

func (s *RedisStore) ReadAll(ctx context.Context) ([]models.PendingMutation, error) {
	if s.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := s.client.Get(ctx, s.key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mutations from redis: %w", err)
	}

	var items []models.PendingMutation
	if err := json.Unmarshal([]byte(val), &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal mutations: %w", err)
	}
	return items, nil
}

func (s *RedisStore) WriteAll(ctx context.Context, items []models.PendingMutation) error {
	if s.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if items == nil {
		items = []models.PendingMutation{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to marshal mutations: %w", err)
	}

	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set mutations in redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}
