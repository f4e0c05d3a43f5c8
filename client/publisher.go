package client

import (
	"context"
	"fmt"

	"github.com/RezaEskandarii/jobsaga/internal/constants"
	"github.com/RezaEskandarii/jobsaga/internal/message_broaker"
	"github.com/RezaEskandarii/jobsaga/internal/partition"
	"github.com/RezaEskandarii/jobsaga/internal/saga"
)

// Queues names the public queues of a deployment.
type Queues struct {
	Requests string // inbound ConvertVideoRequest
	Results  string // inbound TranscodeCompleted from workers
	Dispatch string // outbound DispatchTranscode for workers
	Events   string // outbound job outcome envelopes
}

func NewQueues(prefix string) Queues {
	return Queues{
		Requests: prefix + "." + constants.RequestQueueSuffix,
		Results:  prefix + "." + constants.ResultQueueSuffix,
		Dispatch: prefix + "." + constants.WorkerQueueSuffix,
		Events:   prefix + "." + constants.EventQueueSuffix,
	}
}

// DeclareTopology declares the public queues and one single-active-consumer
// queue per partition.
func DeclareTopology(ctx context.Context, broker message_broaker.MessageBroker, partitioner partition.Partitioner, queues Queues) error {
	specs := []message_broaker.QueueSpec{
		{Name: queues.Requests},
		{Name: queues.Results},
		{Name: queues.Dispatch},
		{Name: queues.Events},
	}
	for _, key := range partitioner.RoutingKeys() {
		specs = append(specs, message_broaker.QueueSpec{Name: key, SingleActiveConsumer: true})
	}
	return broker.DeclareQueues(ctx, specs...)
}

// BrokerPublisher routes envelopes by destination: saga-bound messages to
// their partition, worker commands as plain payloads to the dispatch queue,
// and outcome events to the events queue.
type BrokerPublisher struct {
	broker      message_broaker.MessageBroker
	partitioner partition.Partitioner
	queues      Queues
}

func NewBrokerPublisher(broker message_broaker.MessageBroker, partitioner partition.Partitioner, queues Queues) *BrokerPublisher {
	return &BrokerPublisher{broker: broker, partitioner: partitioner, queues: queues}
}

func (p *BrokerPublisher) Publish(ctx context.Context, env saga.Envelope) error {
	dest := env.Destination()
	switch {
	case dest.IsSagaBound():
		return p.publishEnvelope(ctx, p.partitioner.RoutingKeyFor(env.CorrelationID), env)
	case dest == saga.DestinationWorker:
		return p.broker.Publish(ctx, p.queues.Dispatch, env.Payload, metadata(env)...)
	case dest == saga.DestinationEvents:
		return p.publishEnvelope(ctx, p.queues.Events, env)
	}
	return fmt.Errorf("%w: no route for %s", ErrMalformedMessage, env.Kind)
}

func (p *BrokerPublisher) publishEnvelope(ctx context.Context, routingKey string, env saga.Envelope) error {
	body, err := env.Marshal()
	if err != nil {
		return err
	}
	return p.broker.Publish(ctx, routingKey, body, metadata(env)...)
}

func metadata(env saga.Envelope) []message_broaker.PublishOption {
	return []message_broaker.PublishOption{
		message_broaker.WithMessageID(env.MessageID),
		message_broaker.WithCorrelationID(env.CorrelationID),
	}
}
