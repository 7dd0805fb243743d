package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	client := NewClientFromRedis(rdb)
	t.Cleanup(func() { _ = client.Close() })
	return NewLocker(client), mr
}

func TestLocker_AcquireAndRelease(t *testing.T) {
	ctx := context.Background()
	locker, mr := newTestLocker(t)

	unlock, ok, err := locker.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists(LockKey("sweep")))

	_, ok, err = locker.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must be rejected")

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists(LockKey("sweep")))

	_, ok, err = locker.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocker_ExpiredLockIsNotReleasedByOldHolder(t *testing.T) {
	ctx := context.Background()
	locker, mr := newTestLocker(t)

	unlockOld, ok, err := locker.TryLock(ctx, "sweep", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	_, ok, err = locker.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	current, err := locker.Holder(ctx, "sweep")
	require.NoError(t, err)

	require.NoError(t, unlockOld(ctx))

	after, err := locker.Holder(ctx, "sweep")
	require.NoError(t, err)
	assert.Equal(t, current, after, "stale unlock must not drop the new holder's lock")
}

func TestLocker_InvalidArguments(t *testing.T) {
	locker, _ := newTestLocker(t)

	_, _, err := locker.TryLock(context.Background(), "", time.Minute)
	assert.ErrorIs(t, err, ErrKeyEmpty)

	_, _, err = locker.TryLock(context.Background(), "sweep", 0)
	assert.ErrorIs(t, err, ErrInvalidTTL)
}

func TestLocker_RedisDown(t *testing.T) {
	locker, mr := newTestLocker(t)
	mr.Close()

	_, ok, err := locker.TryLock(context.Background(), "sweep", time.Minute)
	assert.Error(t, err)
	assert.False(t, ok)
}
