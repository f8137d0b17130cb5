package domain

import (
	"context"
	"time"
)

// LockManager provides per-key mutual exclusion. Acquire never blocks: when
// the key is held it returns ErrLockHeld.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// BetLockKey is the lock key that serializes work on one bet.
func BetLockKey(id int64) string {
	return "bet:" + Bet{ID: id}.Base()
}
