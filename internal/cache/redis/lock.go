package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ewhitmore/forexbot/internal/domain"
)

const (
	lockPrefix    = "forexbot:lock:"
	unlockTimeout = 5 * time.Second
)

// releaseLua deletes the lock key only when it still holds the caller's
// token, so an expired-and-reacquired lock is never released by the old
// holder.
const releaseLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// LockManager implements domain.LockManager with SETNX plus conditional
// Lua unlock. The archive loop relies on it so that only one process
// exports and prunes opportunity history per interval.
type LockManager struct {
	rdb     *redis.Client
	release *redis.Script
}

// NewLockManager creates a LockManager backed by the given Client.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{
		rdb:     c.Underlying(),
		release: redis.NewScript(releaseLua),
	}
}

// Acquire takes the named lock for ttl and returns its release function.
// Release is idempotent and runs on its own short deadline so a cancelled
// caller context cannot strand the lock until TTL expiry.
//
// When another holder owns the lock, Acquire returns domain.ErrLockHeld.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.New().String()
	redisKey := lockPrefix + key

	ok, err := lm.rdb.SetNX(ctx, redisKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			unlockCtx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
			defer cancel()
			_ = lm.release.Run(unlockCtx, lm.rdb, []string{redisKey}, token).Err()
		})
	}, nil
}

var _ domain.LockManager = (*LockManager)(nil)
