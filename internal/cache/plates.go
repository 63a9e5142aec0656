// Package cache shares decoded studio plates between server instances.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"dealer-studio-backend/internal/models"
)

const DefaultPlateTTL = 24 * time.Hour

// PlateCache stores plates as Redis hashes with mime and data fields.
type PlateCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPlateCache creates a PlateCache from a Redis URL.
func NewPlateCache(redisURL string, ttl time.Duration) (*PlateCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return NewPlateCacheWithClient(redis.NewClient(opts), ttl), nil
}

func NewPlateCacheWithClient(client *redis.Client, ttl time.Duration) *PlateCache {
	if ttl <= 0 {
		ttl = DefaultPlateTTL
	}
	return &PlateCache{client: client, ttl: ttl}
}

func PlateKey(studioID string) string {
	return "studio:plate:" + studioID
}

func (c *PlateCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *PlateCache) Close() error {
	return c.client.Close()
}

func (c *PlateCache) Get(ctx context.Context, studioID string) (models.Image, bool, error) {
	fields, err := c.client.HGetAll(ctx, PlateKey(studioID)).Result()
	if err == redis.Nil {
		return models.Image{}, false, nil
	}
	if err != nil {
		return models.Image{}, false, err
	}
	data, ok := fields["data"]
	if !ok || data == "" {
		return models.Image{}, false, nil
	}
	return models.Image{MimeType: fields["mime"], Data: []byte(data)}, true, nil
}

func (c *PlateCache) Set(ctx context.Context, studioID string, img models.Image) error {
	key := PlateKey(studioID)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, "mime", img.MimeType, "data", img.Data)
	pipe.Expire(ctx, key, c.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *PlateCache) Delete(ctx context.Context, studioID string) error {
	return c.client.Del(ctx, PlateKey(studioID)).Err()
}
