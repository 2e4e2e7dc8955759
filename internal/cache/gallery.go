package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quickgpt/quickgpt/internal/model"
)

var galleryKey = key("gallery", "published")

// GetPublishedImages returns the cached gallery.
// Returns ErrCacheMiss if not cached.
func (c *Cache) GetPublishedImages(ctx context.Context) ([]model.PublishedImage, error) {
	data, err := c.client.Get(ctx, galleryKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var images []model.PublishedImage
	if err := json.Unmarshal(data, &images); err != nil {
		// Corrupted entry - treat as miss
		return nil, ErrCacheMiss
	}
	return images, nil
}

// SetPublishedImages caches the gallery for ttl.
func (c *Cache) SetPublishedImages(ctx context.Context, images []model.PublishedImage, ttl time.Duration) error {
	data, err := json.Marshal(images)
	if err != nil {
		return fmt.Errorf("marshal gallery: %w", err)
	}
	return c.client.Set(ctx, galleryKey, data, ttl).Err()
}

// InvalidatePublishedImages drops the cached gallery.
func (c *Cache) InvalidatePublishedImages(ctx context.Context) error {
	return c.client.Del(ctx, galleryKey).Err()
}
