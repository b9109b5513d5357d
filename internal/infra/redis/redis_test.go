//go:build integration

package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"coupon-payments/internal/config"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	c, err := NewClient(context.Background(), config.RedisConfig{URL: url})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestReplayGuard_Integration(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	g := NewReplayGuard(c)
	key := "webhook:card:" + uuid.NewString()
	t.Cleanup(func() { _ = c.Del(ctx, key) })

	first, err := g.First(ctx, key, time.Minute)
	if err != nil || !first {
		t.Fatalf("first delivery: %v %v", first, err)
	}
	again, err := g.First(ctx, key, time.Minute)
	if err != nil || again {
		t.Fatalf("duplicate delivery must not be first: %v %v", again, err)
	}
	if err := g.Forget(ctx, key); err != nil {
		t.Fatal(err)
	}
	retried, err := g.First(ctx, key, time.Minute)
	if err != nil || !retried {
		t.Fatalf("a forgotten delivery must be first again: %v %v", retried, err)
	}
}

func TestWatchLock_Integration(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	l := NewWatchLock(c)
	key := "watch:" + uuid.NewString()
	t.Cleanup(func() { _ = c.Del(ctx, key) })

	tok, ok, err := l.TryLock(ctx, key, time.Minute)
	if err != nil || !ok || tok == "" {
		t.Fatalf("lock: %q %v %v", tok, ok, err)
	}
	if _, ok, _ := l.TryLock(ctx, key, time.Minute); ok {
		t.Fatal("second replica must not get the lock")
	}

	t.Run("should ignore unlock with a foreign token", func(t *testing.T) {
		if err := l.Unlock(ctx, key, "someone-else"); err != nil {
			t.Fatal(err)
		}
		if _, ok, _ := l.TryLock(ctx, key, time.Minute); ok {
			t.Fatal("foreign unlock released the lock")
		}
	})

	if err := l.Unlock(ctx, key, tok); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := l.TryLock(ctx, key, time.Minute); !ok {
		t.Fatal("lock must be free after unlock")
	}
}

func TestRateLimiter_Integration(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	rl := NewRateLimiter(c)
	key := "rate_limit:initiate:" + uuid.NewString()
	t.Cleanup(func() { _ = c.Del(ctx, key) })

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, key, 3, time.Minute)
		if err != nil || !ok {
			t.Fatalf("call %d: %v %v", i, ok, err)
		}
	}
	if ok, _ := rl.Allow(ctx, key, 3, time.Minute); ok {
		t.Fatal("fourth call must be limited")
	}
	ttl, err := c.cli.PTTL(ctx, key).Result()
	if err != nil {
		t.Fatal(err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Fatalf("window counter must carry the window TTL, got %v", ttl)
	}
}
