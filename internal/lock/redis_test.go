package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisLocker(rdb, "test", time.Second), mr
}

func TestAcquireRelease(t *testing.T) {
	l, mr := newLocker(t)
	ctx := context.Background()

	release, err := l.Acquire(ctx, 3)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:table:3"))

	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists("test:table:3"))
}

func TestAcquireWaitsForHolder(t *testing.T) {
	l, _ := newLocker(t)
	ctx := context.Background()

	release, err := l.Acquire(ctx, 1)
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 60*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(short, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// a different table is independent
	other, err := l.Acquire(ctx, 2)
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = release(context.Background())
	}()
	waitCtx, cancelWait := context.WithTimeout(ctx, 2*time.Second)
	defer cancelWait()
	again, err := l.Acquire(waitCtx, 1)
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestReleaseAfterTakeover(t *testing.T) {
	l, mr := newLocker(t)
	ctx := context.Background()

	release, err := l.Acquire(ctx, 5)
	require.NoError(t, err)

	// the key expires and someone else grabs it
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("test:table:5", "someone-else"))

	assert.ErrorIs(t, release(ctx), ErrNotHeld)
	got, err := mr.Get("test:table:5")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestNewRedisLockerDefaults(t *testing.T) {
	l := NewRedisLocker(nil, "", 0)
	assert.Equal(t, "lock:table:9", l.Key(9))
	assert.Equal(t, 10*time.Second, l.ttl)
}
