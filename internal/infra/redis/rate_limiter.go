package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// INCR and the first PEXPIRE run as one script so a counter can never be
// left without a TTL.
var luaWindowHit = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n`)

// RateLimiter is a fixed-window counter shared by every replica.
type RateLimiter struct {
	client *Client
}

func NewRateLimiter(client *Client) *RateLimiter {
	return &RateLimiter{client: client}
}

func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := luaWindowHit.Run(ctx, r.client.cli, []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return count <= int64(limit), nil
}
