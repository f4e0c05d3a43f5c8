package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/RezaEskandarii/jobsaga/client"
	"github.com/RezaEskandarii/jobsaga/internal/db"
	"github.com/RezaEskandarii/jobsaga/internal/lock"
	"github.com/RezaEskandarii/jobsaga/internal/logging"
	"github.com/RezaEskandarii/jobsaga/internal/message_broaker"
	"github.com/RezaEskandarii/jobsaga/internal/partition"
	"github.com/RezaEskandarii/jobsaga/internal/scheduler"
	"github.com/RezaEskandarii/jobsaga/internal/store"
	"github.com/RezaEskandarii/jobsaga/internal/store/memory"
	"github.com/RezaEskandarii/jobsaga/internal/store/postgres"
	"github.com/RezaEskandarii/jobsaga/internal/store/sqlite"
	"github.com/RezaEskandarii/jobsaga/types/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Container holds all application dependencies. It is the single source of truth
// for dependency injection and ensures connections and services are created once.
type Container struct {
	Config *config.JobServiceConfig
	Logger zerolog.Logger

	// Storage connections (created once, shared by all stores)
	DB    *sql.DB
	Redis *redis.Client

	Store         store.SagaStore
	LockManager   lock.DistributedLockManager
	MessageBroker message_broaker.MessageBroker
	Scheduler     scheduler.DelayedScheduler

	Partitioner partition.Partitioner
	Queues      client.Queues
	Publisher   *client.BrokerPublisher

	Orchestrator    *client.Orchestrator
	SagaConsumer    *client.SagaConsumer
	Ingress         *client.IngressRouter
	DelayedDelivery *client.DelayedDeliveryWorker
	Retention       *client.RetentionSweeper
	// Worker is nil when no transcode handler is registered.
	Worker     *client.TranscodeWorker
	JobService *client.JobService
}

// NewContainer creates and wires all dependencies. Single entry point for DI.
// Call this once per application lifecycle.
// Pass optional WithDB, WithRedis, WithBroker to inject connections for testing.
func NewContainer(ctx context.Context, cfg *config.JobServiceConfig, opts ...ContainerOption) (*Container, error) {
	opt := &containerConfig{clock: time.Now}
	for _, o := range opts {
		o(opt)
	}

	logger := logging.New(cfg.Environment, cfg.LogLevel)
	if opt.logger != nil {
		logger = *opt.logger
	}
	logger = logger.With().Str("instance", cfg.Instance).Logger()

	c := &Container{
		Config:      cfg,
		Logger:      logger,
		DB:          opt.db,
		Redis:       opt.redis,
		Partitioner: partition.New(cfg.PartitionCount, cfg.QueuePrefix()),
		Queues:      client.NewQueues(cfg.QueuePrefix()),
	}

	if err := c.initStorage(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	if err := c.initScheduler(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("init scheduler: %w", err)
	}
	if err := c.initBroker(opt.broker); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("init message broker: %w", err)
	}

	now := client.Clock(opt.clock)
	c.Publisher = client.NewBrokerPublisher(c.MessageBroker, c.Partitioner, c.Queues)
	c.Orchestrator = client.NewOrchestrator(c.Store, c.Scheduler, c.Publisher, cfg, logger, client.WithClock(now))
	c.SagaConsumer = client.NewSagaConsumer(c.MessageBroker, c.LockManager, c.Orchestrator, c.Partitioner, cfg.WorkerCount, logger)
	c.Ingress = client.NewIngressRouter(c.MessageBroker, c.Publisher, c.Queues, now, logger)
	c.DelayedDelivery = client.NewDelayedDeliveryWorker(c.Scheduler, c.Publisher, cfg.SchedulerPoll, cfg.SchedulerBatch, now, logger)
	c.Retention = client.NewRetentionSweeper(c.Store, c.LockManager, cfg.RetentionWindow, cfg.RetentionSweep, now, logger)
	if cfg.Handlers != nil && !cfg.Handlers.Empty() {
		c.Worker = client.NewTranscodeWorker(c.MessageBroker, cfg.Handlers, c.Queues, cfg.WorkerCount, logger)
	}
	c.JobService = client.NewJobService(c.Orchestrator, c.Store, c.MessageBroker, c.Queues, now)

	return c, nil
}

func (c *Container) initStorage(ctx context.Context) error {
	cfg := c.Config
	switch cfg.StorageDriver {
	case config.Postgres:
		if c.DB == nil {
			conn, err := db.Open(ctx, db.Postgres, cfg.PostgresConfig.ConnectionUrl)
			if err != nil {
				return err
			}
			c.DB = conn
		}
		c.LockManager = lock.NewPostgresDistributedLockManager(c.DB)
		c.Store = postgres.NewPostgresSagaStore(c.DB)
		return db.Migrate(ctx, c.DB, db.Postgres, c.LockManager)
	case config.SQLite:
		if c.DB == nil {
			conn, err := db.Open(ctx, db.SQLite, cfg.SQLiteConfig.Path)
			if err != nil {
				return err
			}
			c.DB = conn
		}
		c.LockManager = lock.NewMemoryDistributedLockManager()
		c.Store = sqlite.NewSQLiteSagaStore(c.DB)
		return db.Migrate(ctx, c.DB, db.SQLite, c.LockManager)
	case config.MemoryStorage:
		c.LockManager = lock.NewMemoryDistributedLockManager()
		c.Store = memory.NewMemorySagaStore()
		return nil
	}
	return fmt.Errorf("unsupported storage driver: %v", cfg.StorageDriver)
}

func (c *Container) initScheduler(ctx context.Context) error {
	cfg := c.Config
	switch cfg.SchedulerDriver {
	case config.RedisScheduler:
		if c.Redis == nil {
			c.Redis = redis.NewClient(&redis.Options{
				Addr:     cfg.RedisConfig.Address,
				Password: cfg.RedisConfig.Password,
				DB:       cfg.RedisConfig.DB,
			})
			if err := c.Redis.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("ping redis: %w", err)
			}
		}
		c.Scheduler = scheduler.NewRedisScheduler(c.Redis, cfg.RedisConfig.KeyPrefix)
		return nil
	case config.MemoryScheduler:
		c.Scheduler = scheduler.NewMemoryScheduler()
		return nil
	}
	return fmt.Errorf("unsupported scheduler driver: %v", cfg.SchedulerDriver)
}

func (c *Container) initBroker(injected message_broaker.MessageBroker) error {
	if injected != nil {
		c.MessageBroker = injected
		return nil
	}
	cfg := c.Config
	switch cfg.MQDriver {
	case config.RabbitMQ:
		mBroker, err := message_broaker.NewRabbitMQ(cfg.RabbitMQConfig.URL, cfg.RabbitMQConfig.Exchange, cfg.RabbitMQConfig.Prefetch)
		if err != nil {
			return err
		}
		c.MessageBroker = mBroker
		return nil
	case config.MemoryQueue:
		c.MessageBroker = message_broaker.NewMemoryBroker()
		return nil
	}
	return fmt.Errorf("unsupported message queue driver: %v", cfg.MQDriver)
}

// Start declares the broker topology and runs every background component
// until ctx is cancelled or one of them fails.
func (c *Container) Start(ctx context.Context) error {
	if err := client.DeclareTopology(ctx, c.MessageBroker, c.Partitioner, c.Queues); err != nil {
		return fmt.Errorf("declare topology: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.SagaConsumer.Start(ctx) })
	g.Go(func() error { return c.Ingress.Start(ctx) })
	g.Go(func() error { return c.DelayedDelivery.Start(ctx) })
	g.Go(func() error { return c.Retention.Start(ctx) })
	if c.Worker != nil {
		g.Go(func() error { return c.Worker.Start(ctx) })
	}

	c.Logger.Info().
		Int("partitions", c.Partitioner.Count).
		Int("workers", c.Config.WorkerCount).
		Str("storage", c.Config.StorageDriver.String()).
		Str("scheduler", c.Config.SchedulerDriver.String()).
		Str("broker", c.Config.MQDriver.String()).
		Msg("job saga service started")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close releases every connection the container owns.
func (c *Container) Close() error {
	var errs []error
	if c.MessageBroker != nil {
		errs = append(errs, c.MessageBroker.Close())
	}
	if c.Redis != nil {
		errs = append(errs, c.Redis.Close())
	}
	if c.DB != nil {
		errs = append(errs, c.DB.Close())
	}
	return errors.Join(errs...)
}
