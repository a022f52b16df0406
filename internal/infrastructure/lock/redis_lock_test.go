package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TrendPress/internal/ports"
)

func newLock(t *testing.T) (*RedisLock, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisLock(rdb, "trendpress:run", time.Minute), mr
}

func TestRedisLockIsExclusive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l, mr := newLock(t)

	release, err := l.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, mr.Exists("trendpress:run"))
	assert.Equal(t, time.Minute, mr.TTL("trendpress:run"))

	_, err = l.Acquire(ctx)
	require.ErrorIs(t, err, ports.ErrLocked)

	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists("trendpress:run"))

	release, err = l.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, release(ctx))
}

func TestRedisLockReleaseKeepsForeignToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l, mr := newLock(t)

	release, err := l.Acquire(ctx)
	require.NoError(t, err)

	// The lease expired and another process took over.
	mr.FastForward(2 * time.Minute)
	require.NoError(t, mr.Set("trendpress:run", "someone-else"))

	require.NoError(t, release(ctx))
	got, err := mr.Get("trendpress:run")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestNoopLock(t *testing.T) {
	t.Parallel()

	release, err := Noop{}.Acquire(context.Background())
	require.NoError(t, err)
	assert.NoError(t, release(context.Background()))
}
