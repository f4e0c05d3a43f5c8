package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/RezaEskandarii/jobsaga/custom_errors"
	"github.com/RezaEskandarii/jobsaga/internal/message_broaker"
	"github.com/RezaEskandarii/jobsaga/types"
	"github.com/RezaEskandarii/jobsaga/types/config"
	"github.com/rs/zerolog"
)

var errNoHandler = errors.New("no transcode handler registered")

// TranscodeWorker runs registered handlers for DispatchTranscode commands and
// reports each outcome to the results queue.
type TranscodeWorker struct {
	broker      message_broaker.MessageBroker
	handlers    *config.TranscodeHandlers
	queues      Queues
	concurrency int
	logger      zerolog.Logger
}

func NewTranscodeWorker(broker message_broaker.MessageBroker, handlers *config.TranscodeHandlers, queues Queues, concurrency int, logger zerolog.Logger) *TranscodeWorker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &TranscodeWorker{
		broker:      broker,
		handlers:    handlers,
		queues:      queues,
		concurrency: concurrency,
		logger:      logger.With().Str("component", "transcode_worker").Logger(),
	}
}

func (w *TranscodeWorker) Start(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		deliveries, err := w.broker.Consume(ctx, w.queues.Dispatch)
		if err != nil {
			return fmt.Errorf("consume %s: %w", w.queues.Dispatch, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for d := range deliveries {
				body := d.Body
				err := guard(ctx, w.logger, func(ctx context.Context) error {
					return w.Execute(ctx, body)
				})
				settle(w.logger, d, err)
			}
		}()
	}
	wg.Wait()
	return ctx.Err()
}

// Execute runs one dispatch and publishes its TranscodeCompleted.
func (w *TranscodeWorker) Execute(ctx context.Context, body []byte) error {
	var req types.DispatchTranscode
	if err := json.Unmarshal(body, &req); err != nil {
		return wrapMalformed(err)
	}

	result := types.TranscodeCompleted{FooID: req.FooID, AttemptNumber: req.AttemptNumber, Success: true}
	if err := w.run(ctx, req); err != nil {
		result.Success = false
		result.Error = err.Error()
		result.ErrorKind = types.ErrorKindTransient
		if custom_errors.IsPermanent(err) || errors.Is(err, errNoHandler) {
			result.ErrorKind = types.ErrorKindPermanent
		}
		w.logger.Warn().Err(err).
			Str("foo_id", req.FooID).
			Int("attempt", req.AttemptNumber).
			Str("error_kind", string(result.ErrorKind)).
			Msg("transcode attempt failed")
	}

	body, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return w.broker.Publish(ctx, w.queues.Results, body)
}

func (w *TranscodeWorker) run(ctx context.Context, req types.DispatchTranscode) error {
	handler, ok := w.handlers.Lookup(req.JobType)
	if !ok {
		return fmt.Errorf("%w for job type %q", errNoHandler, req.JobType)
	}
	return handler(ctx, req)
}
