package client

import (
	"context"
	"fmt"
	"time"

	"github.com/RezaEskandarii/jobsaga/internal/constants"
	"github.com/RezaEskandarii/jobsaga/internal/logging"
	"github.com/RezaEskandarii/jobsaga/internal/scheduler"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DelayedDeliveryWorker publishes scheduled envelopes once they fall due.
type DelayedDeliveryWorker struct {
	scheduler scheduler.DelayedScheduler
	publisher Publisher
	poll      time.Duration
	batch     int
	lease     time.Duration
	now       Clock
	logger    zerolog.Logger
}

type DelayedDeliveryOption func(*DelayedDeliveryWorker)

// WithClaimLease sets how long a claimed entry stays hidden before it comes
// due again when it was not acked.
func WithClaimLease(d time.Duration) DelayedDeliveryOption {
	return func(w *DelayedDeliveryWorker) {
		if d > 0 {
			w.lease = d
		}
	}
}

func NewDelayedDeliveryWorker(delayed scheduler.DelayedScheduler, publisher Publisher, poll time.Duration, batch int, now Clock, logger zerolog.Logger, opts ...DelayedDeliveryOption) *DelayedDeliveryWorker {
	if now == nil {
		now = time.Now
	}
	w := &DelayedDeliveryWorker{
		scheduler: delayed,
		publisher: publisher,
		poll:      poll,
		batch:     batch,
		lease:     constants.DefaultSchedulerLease,
		now:       now,
		logger:    logger.With().Str("component", "delayed_delivery").Logger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start ticks every poll interval until ctx is cancelled.
func (w *DelayedDeliveryWorker) Start(ctx context.Context) error {
	c := cron.New(
		cron.WithLogger(logging.CronLogger(w.logger)),
		cron.WithChain(cron.SkipIfStillRunning(logging.CronLogger(w.logger))),
	)
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", w.poll), func() {
		if _, err := w.Tick(ctx); err != nil {
			w.logger.Error().Err(err).Msg("delayed delivery tick failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule delayed delivery: %w", err)
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}

// Tick publishes every due entry and returns how many were delivered. An
// entry is removed from the schedule only after its publish succeeded; one
// that failed comes due again when its claim lapses.
func (w *DelayedDeliveryWorker) Tick(ctx context.Context) (int, error) {
	now := w.now()
	due, err := w.scheduler.Claim(ctx, now, w.batch, w.lease)
	if err != nil {
		return 0, fmt.Errorf("claim due entries: %w", err)
	}

	delivered := 0
	for _, entry := range due {
		if err := w.publisher.Publish(ctx, entry.Envelope); err != nil {
			w.logger.Warn().Err(err).
				Str("token", entry.Token).
				Time("retry_at", entry.ClaimedUntil).
				Msg("publish of due message failed")
			continue
		}
		delivered++
		if err := w.scheduler.Ack(ctx, entry); err != nil {
			w.logger.Warn().Err(err).Str("token", entry.Token).Msg("ack of published message failed, it will be published again")
		}
	}
	if delivered > 0 {
		w.logger.Debug().Int("delivered", delivered).Msg("due messages published")
	}
	return delivered, nil
}
