package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ══════════════════════════════════════════════════════════════════════════════
// DISTRIBUTED LOCK
// ══════════════════════════════════════════════════════════════════════════════

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by another replica is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker acquires short-lived exclusive locks with SET NX PX.
// It satisfies command.SweepLocker.
type Locker struct {
	client *Client
}

// NewLocker creates a Locker on top of client.
func NewLocker(client *Client) *Locker {
	return &Locker{client: client}
}

// TryLock attempts to take the lock on key for ttl.
// ok is false when another holder owns the lock; err reports Redis failures.
// The returned unlock releases the lock only if it is still ours.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	if key == "" {
		return nil, false, ErrKeyEmpty
	}
	if ttl <= 0 {
		return nil, false, ErrInvalidTTL
	}

	fullKey := LockKey(key)
	token := uuid.NewString()

	acquired, err := l.client.rdb.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis: acquire lock %s: %w", fullKey, err)
	}
	if !acquired {
		return nil, false, nil
	}

	unlock := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client.rdb, []string{fullKey}, token).Err(); err != nil {
			return fmt.Errorf("redis: release lock %s: %w", fullKey, err)
		}
		return nil
	}
	return unlock, true, nil
}

// Holder returns the token currently stored for key, or "" if unlocked.
func (l *Locker) Holder(ctx context.Context, key string) (string, error) {
	val, err := l.client.rdb.Get(ctx, LockKey(key)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}
