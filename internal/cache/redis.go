// Package cache provides the Redis-backed session revocation list, rate
// limiter, gallery read cache and payment event de-duplication.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned when a cached value is absent.
var ErrCacheMiss = errors.New("cache miss")

// keyNamespace prefixes every key so the database can be shared.
const keyNamespace = "qgpt"

// Cache wraps a Redis client with the application's key layout.
type Cache struct {
	client *redis.Client
}

// New connects to redisURL and verifies the connection.
func New(ctx context.Context, redisURL string) (*Cache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	// Every request may touch Redis twice (revocation, rate limit), so keep
	// a few warm connections.
	opt.PoolSize = 20
	opt.MinIdleConns = 4
	opt.PoolTimeout = 2 * time.Second
	opt.ReadTimeout = time.Second
	opt.WriteTimeout = time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Cache{client: client}, nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Ping implements the readiness check.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the client.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Client exposes the raw client for tests.
func (c *Cache) Client() *redis.Client {
	return c.client
}

// key joins parts under the application namespace.
func key(parts ...string) string {
	return keyNamespace + ":" + strings.Join(parts, ":")
}
