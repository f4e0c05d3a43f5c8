package mocks

import "context"

// MockDistributedLockManager is a mock implementation of lock.DistributedLockManager.
type MockDistributedLockManager struct {
	AcquireFunc    func(ctx context.Context, lockID int) error
	TryAcquireFunc func(ctx context.Context, lockID int) (bool, error)
	ReleaseFunc    func(ctx context.Context, lockID int) error
}

func (m *MockDistributedLockManager) Acquire(ctx context.Context, lockID int) error {
	if m.AcquireFunc != nil {
		return m.AcquireFunc(ctx, lockID)
	}
	return nil
}

func (m *MockDistributedLockManager) TryAcquire(ctx context.Context, lockID int) (bool, error) {
	if m.TryAcquireFunc != nil {
		return m.TryAcquireFunc(ctx, lockID)
	}
	return true, nil
}

func (m *MockDistributedLockManager) Release(ctx context.Context, lockID int) error {
	if m.ReleaseFunc != nil {
		return m.ReleaseFunc(ctx, lockID)
	}
	return nil
}
