package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/RezaEskandarii/jobsaga/custom_errors"
	"github.com/RezaEskandarii/jobsaga/internal/logging"
	"github.com/RezaEskandarii/jobsaga/internal/message_broaker"
	"github.com/RezaEskandarii/jobsaga/internal/scheduler"
	"github.com/RezaEskandarii/jobsaga/internal/state"
	"github.com/RezaEskandarii/jobsaga/internal/store/memory"
	"github.com/RezaEskandarii/jobsaga/internal/store/sqlite"
	"github.com/RezaEskandarii/jobsaga/types"
	"github.com/RezaEskandarii/jobsaga/types/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewContainer_MemoryDrivers(t *testing.T) {
	cfg, err := config.NewJobServiceConfig("test")
	require.NoError(t, err)

	c, err := NewContainer(context.Background(), cfg, WithLogger(logging.Nop()))
	require.NoError(t, err)
	defer c.Close()

	assert.IsType(t, &memory.MemorySagaStore{}, c.Store)
	assert.IsType(t, &scheduler.MemoryScheduler{}, c.Scheduler)
	assert.IsType(t, &message_broaker.MemoryBroker{}, c.MessageBroker)
	assert.Nil(t, c.Worker)
	assert.Equal(t, cfg.PartitionCount, c.Partitioner.Count)
	assert.Equal(t, "jobsaga.requests", c.Queues.Requests)
}

func TestNewContainer_SQLiteRunsMigrations(t *testing.T) {
	cfg, err := config.NewJobServiceConfig("test",
		config.WithSQLiteConfig(config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "jobs.db")}),
	)
	require.NoError(t, err)

	c, err := NewContainer(context.Background(), cfg, WithLogger(logging.Nop()))
	require.NoError(t, err)
	defer c.Close()

	assert.IsType(t, &sqlite.SQLiteSagaStore{}, c.Store)
	page, err := c.Store.List(context.Background(), state.KindJob, 1, 10)
	require.NoError(t, err)
	assert.Zero(t, page.TotalItems)
}

func TestContainer_EndToEndWithEmbeddedWorker(t *testing.T) {
	cfg, err := config.NewJobServiceConfig("test",
		config.WithPartitionCount(2),
		config.WithRetention(time.Hour, "@every 1h"),
		config.WithRetry(config.RetryConfig{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Second, AttemptTimeout: time.Minute}),
		config.WithTranscodeHandler("mp4", func(ctx context.Context, req types.DispatchTranscode) error {
			if req.FooID == "F2" {
				return custom_errors.Permanent(assert.AnError)
			}
			return nil
		}),
	)
	require.NoError(t, err)

	c, err := NewContainer(context.Background(), cfg, WithLogger(logging.Nop()))
	require.NoError(t, err)
	defer c.Close()
	require.NotNil(t, c.Worker)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	jobID, err := c.JobService.Enqueue(ctx, types.ConvertVideoRequest{
		GroupID: "G1",
		Count:   1,
		Path:    "/in/movie.mp4",
		Foos:    []types.FooRef{{FooID: "F1"}, {FooID: "F2"}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, jobID)

	assert.Eventually(t, func() bool {
		report, err := c.JobService.Status(ctx, "G1", 0)
		return err == nil && report.Status == state.JobFailed
	}, 5*time.Second, 20*time.Millisecond)

	report, err := c.JobService.Status(ctx, "G1", 0)
	require.NoError(t, err)
	assert.Equal(t, state.FooSucceeded, report.Foos[0].Status)
	assert.Equal(t, state.FooFailed, report.Foos[1].Status)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("container did not stop")
	}
}
