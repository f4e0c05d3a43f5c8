package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/RezaEskandarii/jobsaga/internal/message_broaker"
	"github.com/RezaEskandarii/jobsaga/internal/saga"
	"github.com/RezaEskandarii/jobsaga/types"
	"github.com/rs/zerolog"
)

// IngressRouter moves public requests and worker results onto the partition
// of the saga that owns them.
type IngressRouter struct {
	broker    message_broaker.MessageBroker
	publisher Publisher
	queues    Queues
	now       Clock
	logger    zerolog.Logger
}

func NewIngressRouter(broker message_broaker.MessageBroker, publisher Publisher, queues Queues, now Clock, logger zerolog.Logger) *IngressRouter {
	if now == nil {
		now = time.Now
	}
	return &IngressRouter{
		broker:    broker,
		publisher: publisher,
		queues:    queues,
		now:       now,
		logger:    logger.With().Str("component", "ingress").Logger(),
	}
}

func (r *IngressRouter) Start(ctx context.Context) error {
	requests, err := r.broker.Consume(ctx, r.queues.Requests)
	if err != nil {
		return fmt.Errorf("consume %s: %w", r.queues.Requests, err)
	}
	results, err := r.broker.Consume(ctx, r.queues.Results)
	if err != nil {
		return fmt.Errorf("consume %s: %w", r.queues.Results, err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.drain(ctx, requests, r.RouteRequest)
	}()
	go func() {
		defer wg.Done()
		r.drain(ctx, results, r.RouteResult)
	}()
	wg.Wait()
	return ctx.Err()
}

func (r *IngressRouter) drain(ctx context.Context, deliveries <-chan message_broaker.Delivery, route func(context.Context, []byte) error) {
	for d := range deliveries {
		body := d.Body
		err := guard(ctx, r.logger, func(ctx context.Context) error {
			return route(ctx, body)
		})
		settle(r.logger, d, err)
	}
}

// RouteRequest validates a ConvertVideoRequest and forwards it to its job saga.
func (r *IngressRouter) RouteRequest(ctx context.Context, body []byte) error {
	var req types.ConvertVideoRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return wrapMalformed(err)
	}
	env, err := requestEnvelope(req, r.now())
	if err != nil {
		return err
	}
	return r.publisher.Publish(ctx, env)
}

// RouteResult forwards a worker's TranscodeCompleted to its attempt saga.
func (r *IngressRouter) RouteResult(ctx context.Context, body []byte) error {
	var result types.TranscodeCompleted
	if err := json.Unmarshal(body, &result); err != nil {
		return wrapMalformed(err)
	}
	env, err := resultEnvelope(result, r.now())
	if err != nil {
		return err
	}
	return r.publisher.Publish(ctx, env)
}

func requestEnvelope(req types.ConvertVideoRequest, now time.Time) (saga.Envelope, error) {
	if err := saga.ValidateRequest(req); err != nil {
		return saga.Envelope{}, err
	}
	jobID := saga.JobID(req.GroupID, req.Index)
	return saga.NewEnvelope("convert-video:"+jobID, jobID, saga.ConvertVideo{ConvertVideoRequest: req}, now)
}

func resultEnvelope(result types.TranscodeCompleted, now time.Time) (saga.Envelope, error) {
	if result.FooID == "" || result.AttemptNumber < 1 {
		return saga.Envelope{}, fmt.Errorf("%w: result needs a foo id and attempt number", ErrMalformedMessage)
	}
	id := fmt.Sprintf("transcode-completed:%s:%d", result.FooID, result.AttemptNumber)
	return saga.NewEnvelope(id, saga.AttemptID(result.FooID), saga.TranscodeCompleted{TranscodeCompleted: result}, now)
}
