package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"auditpipe/pkg/platform/sentinel"
)

// Locker serializes sweeps across replicas. Acquire returns
// sentinel.ErrLockHeld when another holder owns the key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

// releaseLua deletes the lock only if it still carries our token, so a sweep
// that outlived its TTL cannot release a lock another replica now holds.
// KEYS[1] = lock key
// ARGV[1] = owner token
var releaseLua = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX.
type RedisLocker struct {
	client redis.UniversalClient
}

func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire retention lock: %w", err)
	}
	if !ok {
		return nil, sentinel.ErrLockHeld
	}
	return func(ctx context.Context) error {
		if err := releaseLua.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("release retention lock: %w", err)
		}
		return nil
	}, nil
}
