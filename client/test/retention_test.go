package test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/RezaEskandarii/jobsaga/client"
	"github.com/RezaEskandarii/jobsaga/client/test/mocks"
	"github.com/RezaEskandarii/jobsaga/internal/constants"
	"github.com/RezaEskandarii/jobsaga/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetentionSweeper_PurgesOlderThanWindow(t *testing.T) {
	var released bool
	locks := &mocks.MockDistributedLockManager{
		TryAcquireFunc: func(ctx context.Context, lockID int) (bool, error) {
			assert.Equal(t, constants.RetentionLock, lockID)
			return true, nil
		},
		ReleaseFunc: func(ctx context.Context, lockID int) error {
			released = true
			return nil
		},
	}
	sagaStore := &mocks.MockSagaStore{
		PurgeFinishedFunc: func(ctx context.Context, before time.Time) (int64, error) {
			assert.Equal(t, now.Add(-72*time.Hour), before)
			return 4, nil
		},
	}
	sweeper := client.NewRetentionSweeper(sagaStore, locks, 72*time.Hour, "@every 1h", clock, logging.Nop())

	purged, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), purged)
	assert.True(t, released)
}

func TestRetentionSweeper_SkipsWhenLockHeldElsewhere(t *testing.T) {
	locks := &mocks.MockDistributedLockManager{
		TryAcquireFunc: func(ctx context.Context, lockID int) (bool, error) { return false, nil },
	}
	sagaStore := &mocks.MockSagaStore{
		PurgeFinishedFunc: func(ctx context.Context, before time.Time) (int64, error) {
			t.Fatal("purge must not run without the lock")
			return 0, nil
		},
	}
	sweeper := client.NewRetentionSweeper(sagaStore, locks, time.Hour, "@every 1h", clock, logging.Nop())

	purged, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, purged)
}

func TestRetentionSweeper_PurgeError(t *testing.T) {
	sagaStore := &mocks.MockSagaStore{
		PurgeFinishedFunc: func(ctx context.Context, before time.Time) (int64, error) {
			return 0, errors.New("connection reset")
		},
	}
	sweeper := client.NewRetentionSweeper(sagaStore, &mocks.MockDistributedLockManager{}, time.Hour, "@every 1h", clock, logging.Nop())

	_, err := sweeper.Sweep(context.Background())
	assert.Error(t, err)
}

func TestRetentionSweeper_InvalidSchedule(t *testing.T) {
	sweeper := client.NewRetentionSweeper(&mocks.MockSagaStore{}, &mocks.MockDistributedLockManager{}, time.Hour, "whenever", clock, logging.Nop())
	assert.Error(t, sweeper.Start(context.Background()))
}
