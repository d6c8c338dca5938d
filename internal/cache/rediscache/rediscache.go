package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisCache хранит снимки поставок. Все ключи получают prefix, чтобы несколько
// окружений могли делить один redis.
type RedisCache struct {
	c      redis.UniversalClient
	prefix string
}

func New(addr string) *RedisCache {
	return NewWithClient(redis.NewClient(&redis.Options{Addr: addr}))
}

func NewWithClient(c redis.UniversalClient) *RedisCache {
	return &RedisCache{c: c}
}

func (r *RedisCache) WithPrefix(prefix string) *RedisCache {
	r.prefix = prefix
	return r
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return errors.Wrap(r.c.Ping(ctx).Err(), "redis ping")
}

// Get: отсутствие ключа не ошибка, а ok=false.
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.c.Get(ctx, r.prefix+key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, errors.Wrapf(err, "redis get %s", key)
	}
	return val, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return errors.Wrapf(r.c.Set(ctx, r.prefix+key, value, ttl).Err(), "redis set %s", key)
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	return errors.Wrapf(r.c.Del(ctx, r.prefix+key).Err(), "redis del %s", key)
}

func (r *RedisCache) Close() error {
	return r.c.Close()
}
