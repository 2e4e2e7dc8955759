//go:build integration

package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quickgpt/quickgpt/internal/model"
	"github.com/quickgpt/quickgpt/internal/testutil"
)

func newCacheTestEnv(t *testing.T) (context.Context, *Cache) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	redisURL := testutil.RequireEnv(t, "REDIS_URL")

	c, err := New(ctx, redisURL)
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	if err := testutil.FlushRedis(ctx, c.Client()); err != nil {
		t.Fatalf("flush redis: %v", err)
	}
	return ctx, c
}

func TestIntegrationCache_TokenRevocation(t *testing.T) {
	ctx, c := newCacheTestEnv(t)

	revoked, err := c.IsTokenRevoked(ctx, "jti-1")
	if err != nil || revoked {
		t.Fatalf("fresh token should not be revoked: %v %v", revoked, err)
	}

	if err := c.RevokeToken(ctx, "jti-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("RevokeToken failed: %v", err)
	}
	revoked, err = c.IsTokenRevoked(ctx, "jti-1")
	if err != nil || !revoked {
		t.Fatalf("expected revoked, got %v %v", revoked, err)
	}

	// Already expired tokens need no entry.
	if err := c.RevokeToken(ctx, "jti-2", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("RevokeToken failed: %v", err)
	}
	if revoked, _ := c.IsTokenRevoked(ctx, "jti-2"); revoked {
		t.Error("expired token should not be stored")
	}
}

func TestIntegrationCache_Gallery(t *testing.T) {
	ctx, c := newCacheTestEnv(t)

	if _, err := c.GetPublishedImages(ctx); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}

	images := []model.PublishedImage{{ImageURL: "https://img/1.png", UserName: "Ada"}}
	if err := c.SetPublishedImages(ctx, images, time.Minute); err != nil {
		t.Fatalf("SetPublishedImages failed: %v", err)
	}

	got, err := c.GetPublishedImages(ctx)
	if err != nil {
		t.Fatalf("GetPublishedImages failed: %v", err)
	}
	if len(got) != 1 || got[0].UserName != "Ada" {
		t.Errorf("unexpected gallery %+v", got)
	}

	if err := c.InvalidatePublishedImages(ctx); err != nil {
		t.Fatalf("InvalidatePublishedImages failed: %v", err)
	}
	if _, err := c.GetPublishedImages(ctx); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected miss after invalidation, got %v", err)
	}
}

func TestIntegrationCache_ClaimPaymentEvent(t *testing.T) {
	ctx, c := newCacheTestEnv(t)

	first, err := c.ClaimPaymentEvent(ctx, "evt-1")
	if err != nil || !first {
		t.Fatalf("first claim should win: %v %v", first, err)
	}
	again, err := c.ClaimPaymentEvent(ctx, "evt-1")
	if err != nil || again {
		t.Fatalf("second claim should lose: %v %v", again, err)
	}

	if err := c.ReleasePaymentEvent(ctx, "evt-1"); err != nil {
		t.Fatalf("ReleasePaymentEvent failed: %v", err)
	}
	retry, _ := c.ClaimPaymentEvent(ctx, "evt-1")
	if !retry {
		t.Error("claim after release should win")
	}
}

func TestIntegrationCache_UserRateLimit(t *testing.T) {
	ctx, c := newCacheTestEnv(t)

	for i := 0; i < 3; i++ {
		res, err := c.CheckUserRateLimit(ctx, ScopeMessage, "u1", 1, 3)
		if err != nil {
			t.Fatalf("CheckUserRateLimit failed: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("request %d should be allowed within burst", i)
		}
	}

	res, _ := c.CheckUserRateLimit(ctx, ScopeMessage, "u1", 1, 3)
	if res.Allowed {
		t.Error("request past burst should be limited")
	}
	if res.RetryAfter <= 0 {
		t.Error("limited result should carry RetryAfter")
	}

	other, _ := c.CheckUserRateLimit(ctx, ScopeMessage, "u2", 1, 3)
	if !other.Allowed {
		t.Error("buckets are per user")
	}
}
