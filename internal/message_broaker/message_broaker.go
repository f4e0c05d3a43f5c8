package message_broaker

import "context"

// Delivery is one consumed message. Exactly one of Ack or Nack must be called.
type Delivery struct {
	Body []byte

	ack  func() error
	nack func(requeue bool) error
}

func NewDelivery(body []byte, ack func() error, nack func(requeue bool) error) Delivery {
	return Delivery{Body: body, ack: ack, nack: nack}
}

func (d Delivery) Ack() error {
	if d.ack == nil {
		return nil
	}
	return d.ack()
}

// Nack rejects the message; with requeue it is delivered again later.
func (d Delivery) Nack(requeue bool) error {
	if d.nack == nil {
		return nil
	}
	return d.nack(requeue)
}

// QueueSpec describes a queue bound to the exchange under its own name.
type QueueSpec struct {
	Name string
	// SingleActiveConsumer keeps delivery to one consumer at a time so a
	// queue is processed in order even with several instances subscribed.
	SingleActiveConsumer bool
}

// PublishOptions carries transport metadata of an outgoing message.
type PublishOptions struct {
	MessageID     string
	CorrelationID string
}

type PublishOption func(*PublishOptions)

func WithMessageID(id string) PublishOption {
	return func(o *PublishOptions) {
		o.MessageID = id
	}
}

func WithCorrelationID(id string) PublishOption {
	return func(o *PublishOptions) {
		o.CorrelationID = id
	}
}

// ApplyPublishOptions folds opts into a PublishOptions value.
func ApplyPublishOptions(opts ...PublishOption) PublishOptions {
	var o PublishOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type MessageBroker interface {
	// DeclareQueues creates the queues (idempotently) and binds each to the
	// routing key equal to its name.
	DeclareQueues(ctx context.Context, queues ...QueueSpec) error
	Publish(ctx context.Context, routingKey string, message []byte, opts ...PublishOption) error
	Consume(ctx context.Context, queue string) (<-chan Delivery, error)
	Close() error
}
