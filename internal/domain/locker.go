package domain

import (
	"context"
	"errors"
)

// ErrLockNotAcquired is returned when a lock is already held elsewhere.
var ErrLockNotAcquired = errors.New("lock not acquired")

// Lock represents an acquired distributed lock.
type Lock interface {
	Unlock(ctx context.Context) error
}

// Locker hands out named cluster-wide locks. Lock does not wait for a held
// lock; it returns ErrLockNotAcquired instead.
type Locker interface {
	Lock(ctx context.Context, name string) (Lock, error)
}
