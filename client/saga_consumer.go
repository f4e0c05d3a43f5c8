package client

import (
	"context"
	"sync"
	"time"

	"github.com/RezaEskandarii/jobsaga/internal/constants"
	"github.com/RezaEskandarii/jobsaga/internal/lock"
	"github.com/RezaEskandarii/jobsaga/internal/message_broaker"
	"github.com/RezaEskandarii/jobsaga/internal/partition"
	"github.com/RezaEskandarii/jobsaga/internal/saga"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

const defaultLeaseRetry = 5 * time.Second

// SagaConsumer drains the partition queues. Each partition is a lane that is
// processed sequentially while this instance holds the partition lease, so
// messages of one saga instance are never handled concurrently. The
// semaphore bounds transitions in flight across all lanes.
type SagaConsumer struct {
	broker      message_broaker.MessageBroker
	lock        lock.DistributedLockManager
	handler     EnvelopeHandler
	partitioner partition.Partitioner
	sem         *semaphore.Weighted
	leaseRetry  time.Duration
	logger      zerolog.Logger
}

func NewSagaConsumer(broker message_broaker.MessageBroker, lockManager lock.DistributedLockManager, handler EnvelopeHandler, partitioner partition.Partitioner, workerCount int, logger zerolog.Logger) *SagaConsumer {
	if workerCount < 1 {
		workerCount = 1
	}
	return &SagaConsumer{
		broker:      broker,
		lock:        lockManager,
		handler:     handler,
		partitioner: partitioner,
		sem:         semaphore.NewWeighted(int64(workerCount)),
		leaseRetry:  defaultLeaseRetry,
		logger:      logger.With().Str("component", "saga_consumer").Logger(),
	}
}

// WithLeaseRetry sets how long a lane waits before asking for a lease again.
func (c *SagaConsumer) WithLeaseRetry(d time.Duration) *SagaConsumer {
	c.leaseRetry = d
	return c
}

// Start runs every lane until ctx is cancelled.
func (c *SagaConsumer) Start(ctx context.Context) error {
	var wg sync.WaitGroup
	for n := 0; n < c.partitioner.Count; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c.runLane(ctx, n)
		}(n)
	}
	wg.Wait()
	return ctx.Err()
}

func (c *SagaConsumer) runLane(ctx context.Context, n int) {
	logger := c.logger.With().Int("partition", n).Logger()
	lockID := constants.PartitionLock(n)

	for ctx.Err() == nil {
		held, err := c.lock.TryAcquire(ctx, lockID)
		if err != nil {
			logger.Error().Err(err).Msg("partition lease request failed")
		}
		if held {
			logger.Info().Msg("partition lease acquired")
			c.consume(ctx, logger, c.partitioner.RoutingKey(n))
			if err := c.lock.Release(context.WithoutCancel(ctx), lockID); err != nil {
				logger.Error().Err(err).Msg("partition lease release failed")
			}
			logger.Info().Msg("partition lease released")
		}

		select {
		case <-ctx.Done():
		case <-time.After(c.leaseRetry):
		}
	}
}

func (c *SagaConsumer) consume(ctx context.Context, logger zerolog.Logger, queue string) {
	deliveries, err := c.broker.Consume(ctx, queue)
	if err != nil {
		logger.Error().Err(err).Str("queue", queue).Msg("consume failed")
		return
	}
	for d := range deliveries {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			_ = d.Nack(true)
			return
		}
		c.process(ctx, logger, d)
		c.sem.Release(1)
	}
}

func (c *SagaConsumer) process(ctx context.Context, logger zerolog.Logger, d message_broaker.Delivery) {
	err := guard(ctx, logger, func(ctx context.Context) error {
		env, err := saga.UnmarshalEnvelope(d.Body)
		if err != nil {
			return wrapMalformed(err)
		}
		return c.handler.Handle(ctx, env)
	})
	settle(logger, d, err)
}
