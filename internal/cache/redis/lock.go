package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/meridianxyz/fillbot/internal/domain"
)

// unlockLua releases a lock only when the stored token matches the
// caller's, so an expired holder cannot free a lock someone else has
// since taken.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// LockManager hands out TTL-bounded distributed locks via SET NX. The
// executor locks per offer id so one operator process does not submit two
// fills against the same offer concurrently. It is an operational dedup
// aid, not a correctness mechanism; the settlement contract is the
// authority either way.
type LockManager struct {
	rdb      *redis.Client
	unlockSc *redis.Script
}

func NewLockManager(c *Client) *LockManager {
	return &LockManager{
		rdb:      c.Underlying(),
		unlockSc: redis.NewScript(unlockLua),
	}
}

// Acquire takes the lock for key or returns domain.ErrLockHeld. The
// returned release function is idempotent and uses its own timeout so the
// lock is freed even when the caller's context is already cancelled.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.New().String()
	lk := "lock:" + key

	ok, err := lm.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true

		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = lm.unlockSc.Run(unlockCtx, lm.rdb, []string{lk}, token).Err()
	}, nil
}

var _ domain.LockManager = (*LockManager)(nil)
