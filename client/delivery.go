package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/RezaEskandarii/jobsaga/custom_errors"
	"github.com/RezaEskandarii/jobsaga/internal/message_broaker"
	"github.com/RezaEskandarii/jobsaga/internal/saga"
	"github.com/rs/zerolog"
)

// settle acknowledges d according to the outcome of handling it.
func settle(logger zerolog.Logger, d message_broaker.Delivery, err error) {
	var (
		conflict   *custom_errors.DuplicateConflictError
		validation *custom_errors.ValidationError
		ackErr     error
	)
	switch {
	case err == nil:
		ackErr = d.Ack()
	case errors.As(err, &conflict):
		logger.Warn().Err(err).Str("group_id", conflict.GroupID).Int("index", conflict.Index).Msg("conflicting duplicate request dropped")
		ackErr = d.Ack()
	case errors.Is(err, ErrMalformedMessage), errors.Is(err, saga.ErrUnknownMessage), errors.As(err, &validation):
		logger.Error().Err(err).Msg("rejecting unprocessable message")
		ackErr = d.Nack(false)
	default:
		logger.Warn().Err(err).Msg("message handling failed, requeueing")
		ackErr = d.Nack(true)
	}
	if ackErr != nil {
		logger.Error().Err(ackErr).Msg("failed to settle delivery")
	}
}

// guard runs fn and turns a panic into an error so the delivery is requeued.
func guard(ctx context.Context, logger zerolog.Logger, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("panic while handling message")
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

func wrapMalformed(err error) error {
	return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
}
