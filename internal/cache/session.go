package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func revokedTokenKey(tokenID string) string {
	return key("session", "revoked", tokenID)
}

// RevokeToken marks a token id as revoked until its natural expiry.
func (c *Cache) RevokeToken(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := c.client.Set(ctx, revokedTokenKey(tokenID), 1, ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// IsTokenRevoked reports whether a token id was revoked.
func (c *Cache) IsTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	err := c.client.Get(ctx, revokedTokenKey(tokenID)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check token revocation: %w", err)
	}
	return true, nil
}
