// Package lock provides a Redis-backed mutual exclusion lock per table so
// that several service instances sharing one database serialise bookings
// the same way a single process does.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned by release when the key expired or was taken over
// by another holder before release ran.
var ErrNotHeld = errors.New("lock not held")

// release deletes the key only if it still carries our token.
var releaseScript = redis.NewScript(`
    if redis.call('GET', KEYS[1]) == ARGV[1] then
        return redis.call('DEL', KEYS[1])
    end
    return 0
`)

// RedisLocker implements scheduler.Locker with SET NX PX.  TTL bounds how
// long a crashed holder can block a table; RetryEvery is the polling
// interval while waiting.
type RedisLocker struct {
	rdb        *redis.Client
	prefix     string
	ttl        time.Duration
	retryEvery time.Duration
}

// NewRedisLocker returns a locker that writes keys "<prefix>:table:<id>".
func NewRedisLocker(rdb *redis.Client, prefix string, ttl time.Duration) *RedisLocker {
	if prefix == "" {
		prefix = "lock"
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{rdb: rdb, prefix: prefix, ttl: ttl, retryEvery: 25 * time.Millisecond}
}

// Key returns the Redis key guarding a table.
func (l *RedisLocker) Key(tableID uint64) string {
	return fmt.Sprintf("%s:table:%d", l.prefix, tableID)
}

// Acquire polls until the key is set or ctx is done.
func (l *RedisLocker) Acquire(ctx context.Context, tableID uint64) (func(context.Context) error, error) {
	key := l.Key(tableID)
	token := uuid.NewString()

	ticker := time.NewTicker(l.retryEvery)
	defer ticker.Stop()
	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("redis setnx %s: %w", key, err)
		}
		if ok {
			return func(rctx context.Context) error { return l.release(rctx, key, token) }, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) release(ctx context.Context, key, token string) error {
	n, err := releaseScript.Run(ctx, l.rdb, []string{key}, token).Int64()
	if err != nil {
		return fmt.Errorf("redis release %s: %w", key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}
