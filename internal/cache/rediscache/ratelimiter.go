package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Окно открывается первым INCR: TTL ставится только ему, последующие вызовы
// окно не продлевают.
var fixedWindow = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// RateLimiter: счётчик в фиксированном окне, общий для ship-api и ship-worker.
type RateLimiter struct {
	c      redis.UniversalClient
	prefix string
}

func NewRateLimiter(addr string) *RateLimiter {
	return &RateLimiter{c: redis.NewClient(&redis.Options{Addr: addr})}
}

func (rl *RateLimiter) WithPrefix(prefix string) *RateLimiter {
	rl.prefix = prefix
	return rl
}

// Allow returns whether this call fits into limit and the count in the current window.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	n, err := fixedWindow.Run(ctx, rl.c, []string{rl.prefix + key}, window.Milliseconds()).Int64()
	if err != nil {
		return false, 0, errors.Wrap(err, "redis ratelimit")
	}
	return n <= limit, n, nil
}

func (rl *RateLimiter) Close() error {
	return rl.c.Close()
}
