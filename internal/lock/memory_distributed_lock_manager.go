package lock

import (
	"context"
	"fmt"
	"sync"
)

// MemoryDistributedLockManager is a process-local lock manager for
// single-instance deployments and tests.
type MemoryDistributedLockManager struct {
	mu    sync.Mutex
	locks map[int]chan struct{}
}

func NewMemoryDistributedLockManager() *MemoryDistributedLockManager {
	return &MemoryDistributedLockManager{locks: make(map[int]chan struct{})}
}

func (l *MemoryDistributedLockManager) lockFor(lockID int) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.locks[lockID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[lockID] = ch
	}
	return ch
}

func (l *MemoryDistributedLockManager) Acquire(ctx context.Context, lockID int) error {
	select {
	case l.lockFor(lockID) <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to acquire lock: %w", ctx.Err())
	}
}

func (l *MemoryDistributedLockManager) TryAcquire(ctx context.Context, lockID int) (bool, error) {
	select {
	case l.lockFor(lockID) <- struct{}{}:
		return true, nil
	default:
		return false, nil
	}
}

func (l *MemoryDistributedLockManager) Release(ctx context.Context, lockID int) error {
	select {
	case <-l.lockFor(lockID):
		return nil
	default:
		return fmt.Errorf("failed to release lock: %w", ErrNotHeld)
	}
}
