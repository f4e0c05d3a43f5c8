package message_broaker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

type RabbitMQ struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	prefetch int

	publishMu sync.Mutex
}

// NewRabbitMQ creates a new instance of RabbitMQ message broker.
func NewRabbitMQ(url, exchange string, prefetch int) (*RabbitMQ, error) {
	if prefetch < 1 {
		prefetch = 1
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := ch.ExchangeDeclare(
		exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &RabbitMQ{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		prefetch: prefetch,
	}, nil
}

func (r *RabbitMQ) DeclareQueues(ctx context.Context, queues ...QueueSpec) error {
	r.publishMu.Lock()
	defer r.publishMu.Unlock()

	for _, q := range queues {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := r.channel.QueueDeclare(
			q.Name,
			true,
			false,
			false,
			false,
			queueArgs(q),
		); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.Name, err)
		}

		if err := r.channel.QueueBind(
			q.Name,
			q.Name,
			r.exchange,
			false,
			nil,
		); err != nil {
			return fmt.Errorf("bind queue %s: %w", q.Name, err)
		}
	}
	return nil
}

func queueArgs(q QueueSpec) amqp.Table {
	if !q.SingleActiveConsumer {
		return nil
	}
	return amqp.Table{"x-single-active-consumer": true}
}

func (r *RabbitMQ) Publish(ctx context.Context, routingKey string, message []byte, opts ...PublishOption) error {
	r.publishMu.Lock()
	defer r.publishMu.Unlock()

	return r.channel.PublishWithContext(
		ctx,
		r.exchange,
		routingKey,
		false,
		false,
		publishing(message, ApplyPublishOptions(opts...)),
	)
}

func publishing(message []byte, o PublishOptions) amqp.Publishing {
	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     o.MessageID,
		CorrelationId: o.CorrelationID,
		Body:          message,
	}
}

// Consume opens a dedicated channel for the queue with manual
// acknowledgement. The returned channel closes when ctx is done or the
// broker connection drops.
func (r *RabbitMQ) Consume(ctx context.Context, queue string) (<-chan Delivery, error) {
	ch, err := r.conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.Qos(r.prefetch, 0, false); err != nil {
		ch.Close()
		return nil, err
	}

	msgs, err := ch.Consume(
		queue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, err
	}

	out := make(chan Delivery)

	go func() {
		defer close(out)
		defer ch.Close()

		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				d := msg
				delivery := NewDelivery(
					d.Body,
					func() error { return d.Ack(false) },
					func(requeue bool) error { return d.Nack(false, requeue) },
				)
				select {
				case out <- delivery:
				case <-ctx.Done():
					_ = d.Nack(false, true)
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (r *RabbitMQ) Close() error {
	if err := r.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		_ = r.conn.Close()
		return err
	}
	return r.conn.Close()
}
