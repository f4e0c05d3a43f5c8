package lock

import (
	"context"
	"errors"
)

var ErrNotHeld = errors.New("lock is not held by this instance")

// DistributedLockManager hands out cluster-wide exclusive locks identified by
// integer ids. A lock stays held until Release or until the holder dies.
type DistributedLockManager interface {
	// Acquire blocks until the lock is granted or ctx is done.
	Acquire(ctx context.Context, lockID int) error
	// TryAcquire reports whether the lock was granted without waiting.
	TryAcquire(ctx context.Context, lockID int) (bool, error)
	Release(ctx context.Context, lockID int) error
}
