package redis

import (
	"context"
	"time"

	"coupon-payments/internal/domain/ports/repository"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var _ repository.WatchLock = (*WatchLock)(nil)

// WatchLock is a best-effort, single-attempt lease keyed per provider transaction.
type WatchLock struct {
	c *Client
}

func NewWatchLock(c *Client) *WatchLock {
	return &WatchLock{c: c}
}

func (l *WatchLock) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.c.SetNX(ctx, key, token, ttl)
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

// Unlock deletes key only while it still holds token, so an expired lease
// taken over by another replica is left alone.
func (l *WatchLock) Unlock(ctx context.Context, key, token string) error {
	_, err := luaUnlock.Run(ctx, l.c.cli, []string{key}, token).Result()
	return err
}
