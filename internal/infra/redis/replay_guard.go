package redis

import (
	"context"
	"time"

	"coupon-payments/internal/domain/ports/repository"
)

var _ repository.ReplayGuard = (*ReplayGuard)(nil)

type ReplayGuard struct {
	c *Client
}

func NewReplayGuard(c *Client) *ReplayGuard {
	return &ReplayGuard{c: c}
}

func (g *ReplayGuard) First(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return g.c.SetNX(ctx, key, time.Now().Unix(), ttl)
}

func (g *ReplayGuard) Forget(ctx context.Context, key string) error {
	return g.c.Del(ctx, key)
}
