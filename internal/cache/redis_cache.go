package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gabrielkumagai/beezy-api/internal/config"
	"github.com/gabrielkumagai/beezy-api/internal/domain"
)

// RedisMessageCache implements MessageCache on redis.
type RedisMessageCache struct {
	client *redis.Client
	prefix string
}

// NewRedisMessageCache connects to redis and returns a message cache.
func NewRedisMessageCache(cfg config.RedisConfig, prefix string) (*RedisMessageCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisMessageCache{
		client: client,
		prefix: prefix,
	}, nil
}

func (c *RedisMessageCache) pageKey(chatID string, limit int) string {
	return fmt.Sprintf("%s:chat:%s:page:%d", c.prefix, chatID, limit)
}

func (c *RedisMessageCache) chatSetKey(chatID string) string {
	return fmt.Sprintf("%s:chat:%s:keys", c.prefix, chatID)
}

// Get returns the cached page for a chat/limit, or ErrCacheMiss.
func (c *RedisMessageCache) Get(ctx context.Context, chatID string, limit int) ([]domain.Message, error) {
	data, err := c.client.Get(ctx, c.pageKey(chatID, limit)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var messages []domain.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}
	return messages, nil
}

// Set stores a page and tracks its key for later invalidation.
func (c *RedisMessageCache) Set(ctx context.Context, chatID string, limit int, messages []domain.Message, ttl time.Duration) error {
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	key := c.pageKey(chatID, limit)
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, key, data, ttl)
	pipe.SAdd(ctx, c.chatSetKey(chatID), key)
	pipe.Expire(ctx, c.chatSetKey(chatID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	return nil
}

// Invalidate drops every cached page of a chat.
func (c *RedisMessageCache) Invalidate(ctx context.Context, chatID string) error {
	setKey := c.chatSetKey(chatID)
	keys, err := c.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return fmt.Errorf("failed to list cache keys: %w", err)
	}
	keys = append(keys, setKey)
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}
	return nil
}

// Close releases the redis connection.
func (c *RedisMessageCache) Close() error {
	return c.client.Close()
}
