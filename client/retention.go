package client

import (
	"context"
	"fmt"
	"time"

	"github.com/RezaEskandarii/jobsaga/internal/constants"
	"github.com/RezaEskandarii/jobsaga/internal/lock"
	"github.com/RezaEskandarii/jobsaga/internal/logging"
	"github.com/RezaEskandarii/jobsaga/internal/store"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// RetentionSweeper deletes finished sagas once they are older than the
// retention window. Only one instance sweeps at a time.
type RetentionSweeper struct {
	store  store.SagaStore
	lock   lock.DistributedLockManager
	window time.Duration
	spec   string
	now    Clock
	logger zerolog.Logger
}

func NewRetentionSweeper(sagaStore store.SagaStore, lockManager lock.DistributedLockManager, window time.Duration, spec string, now Clock, logger zerolog.Logger) *RetentionSweeper {
	if now == nil {
		now = time.Now
	}
	return &RetentionSweeper{
		store:  sagaStore,
		lock:   lockManager,
		window: window,
		spec:   spec,
		now:    now,
		logger: logger.With().Str("component", "retention").Logger(),
	}
}

func (r *RetentionSweeper) Start(ctx context.Context) error {
	c := cron.New(cron.WithLogger(logging.CronLogger(r.logger)))
	if _, err := c.AddFunc(r.spec, func() {
		if _, err := r.Sweep(ctx); err != nil {
			r.logger.Error().Err(err).Msg("retention sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", r.spec, err)
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}

// Sweep purges expired sagas. It returns 0 without error when another
// instance holds the retention lock.
func (r *RetentionSweeper) Sweep(ctx context.Context) (int64, error) {
	held, err := r.lock.TryAcquire(ctx, constants.RetentionLock)
	if err != nil {
		return 0, err
	}
	if !held {
		return 0, nil
	}
	defer func() {
		if err := r.lock.Release(context.WithoutCancel(ctx), constants.RetentionLock); err != nil {
			r.logger.Error().Err(err).Msg("release retention lock failed")
		}
	}()

	purged, err := r.store.PurgeFinished(ctx, r.now().Add(-r.window))
	if err != nil {
		return 0, fmt.Errorf("purge finished sagas: %w", err)
	}
	if purged > 0 {
		r.logger.Info().Int64("purged", purged).Msg("finished sagas purged")
	}
	return purged, nil
}
