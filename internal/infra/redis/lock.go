package redis

import (
	"context"
	"time"

	"pix-subscription-billing/internal/domain"
	"pix-subscription-billing/internal/usecase"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var _ usecase.Locker = (*RedisLocker)(nil)

// RedisLocker is a best-effort SETNX lock. It serializes concurrent
// reconciliation of the same reference across instances; correctness does
// not depend on it, the storage-level guards do that.
type RedisLocker struct {
	cli *redis.Client
}

func NewLocker(c *Client) *RedisLocker {
	return &RedisLocker{cli: c.cli}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := l.cli.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", domain.ErrLockHeld
	}
	return token, nil
}

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

// Unlock releases only the holder's own lock; a stale token is a no-op.
func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	_, err := luaUnlock.Run(ctx, l.cli, []string{key}, token).Result()
	return err
}
