package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-io-community/chat-service/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// RedisLatestCache stores one hash per community; each field is a limit.
// Invalidation drops the whole hash.
type RedisLatestCache struct {
	client *redis.Client
	prefix string
}

func NewRedisLatestCache(client *redis.Client, prefix string) *RedisLatestCache {
	return &RedisLatestCache{
		client: client,
		prefix: prefix,
	}
}

func (c *RedisLatestCache) key(communityID string) string {
	return fmt.Sprintf("%s:community:%s:latest", c.prefix, communityID)
}

func (c *RedisLatestCache) Get(ctx context.Context, communityID string, limit int) ([]domain.MessageView, error) {
	data, err := c.client.HGet(ctx, c.key(communityID), strconv.Itoa(limit)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var views []domain.MessageView
	if err := json.Unmarshal(data, &views); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}
	return views, nil
}

func (c *RedisLatestCache) Set(ctx context.Context, communityID string, limit int, views []domain.MessageView, ttl time.Duration) error {
	data, err := json.Marshal(views)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	key := c.key(communityID)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, strconv.Itoa(limit), data)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	return nil
}

func (c *RedisLatestCache) Invalidate(ctx context.Context, communityID string) error {
	if err := c.client.Del(ctx, c.key(communityID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}
	return nil
}

func (c *RedisLatestCache) Close() error {
	return c.client.Close()
}
