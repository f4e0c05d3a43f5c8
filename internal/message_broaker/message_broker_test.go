package message_broaker

import (
	"context"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageBrokerInterface(t *testing.T) {
	var _ MessageBroker = (*MemoryBroker)(nil)
	var _ MessageBroker = (*RabbitMQ)(nil)
}

func receive(t *testing.T, ch <-chan Delivery) Delivery {
	t.Helper()
	select {
	case d, ok := <-ch:
		require.True(t, ok, "delivery channel closed")
		return d
	case <-time.After(time.Second):
		t.Fatal("no delivery")
	}
	return Delivery{}
}

func TestMemoryBroker_PublishConsumeInOrder(t *testing.T) {
	broker := NewMemoryBroker()
	defer broker.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, broker.Publish(ctx, "queue", []byte("one")))
	require.NoError(t, broker.Publish(ctx, "queue", []byte("two")))

	ch, err := broker.Consume(ctx, "queue")
	require.NoError(t, err)

	first := receive(t, ch)
	assert.Equal(t, "one", string(first.Body))
	require.NoError(t, first.Ack())

	second := receive(t, ch)
	assert.Equal(t, "two", string(second.Body))
	require.NoError(t, second.Ack())

	assert.Eventually(t, func() bool { return broker.Pending("queue") == 0 }, time.Second, 5*time.Millisecond)
}

func TestMemoryBroker_NackRequeuesAtHead(t *testing.T) {
	broker := NewMemoryBroker()
	defer broker.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, broker.Publish(ctx, "queue", []byte("one")))
	require.NoError(t, broker.Publish(ctx, "queue", []byte("two")))
	ch, err := broker.Consume(ctx, "queue")
	require.NoError(t, err)

	require.NoError(t, receive(t, ch).Nack(true))
	again := receive(t, ch)
	assert.Equal(t, "one", string(again.Body))
	require.NoError(t, again.Nack(false))

	assert.Equal(t, "two", string(receive(t, ch).Body))
}

func TestMemoryBroker_HoldsOneUnackedPerConsumer(t *testing.T) {
	broker := NewMemoryBroker()
	defer broker.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, broker.Publish(ctx, "queue", []byte("one")))
	require.NoError(t, broker.Publish(ctx, "queue", []byte("two")))
	ch, err := broker.Consume(ctx, "queue")
	require.NoError(t, err)

	first := receive(t, ch)
	select {
	case <-ch:
		t.Fatal("second message delivered before the first was settled")
	case <-time.After(20 * time.Millisecond):
	}
	assert.Equal(t, 2, broker.Pending("queue"))
	require.NoError(t, first.Ack())
	assert.Equal(t, "two", string(receive(t, ch).Body))
}

func TestMemoryBroker_ConsumeStopsOnCancel(t *testing.T) {
	broker := NewMemoryBroker()
	defer broker.Close()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := broker.Consume(ctx, "queue")
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestMemoryBroker_Close(t *testing.T) {
	broker := NewMemoryBroker()
	require.NoError(t, broker.Close())

	err := broker.Publish(context.Background(), "queue", []byte("msg"))
	assert.ErrorIs(t, err, ErrBrokerClosed)
	_, err = broker.Consume(context.Background(), "queue")
	assert.ErrorIs(t, err, ErrBrokerClosed)
}

func TestDelivery_NilCallbacks(t *testing.T) {
	d := NewDelivery([]byte("x"), nil, nil)
	assert.NoError(t, d.Ack())
	assert.NoError(t, d.Nack(true))
}

func TestRabbitMQ_PublishingCarriesMetadata(t *testing.T) {
	p := publishing([]byte("{}"), ApplyPublishOptions(
		WithMessageID("admission-granted:F1"),
		WithCorrelationID("job:G1:0"),
	))
	assert.Equal(t, "admission-granted:F1", p.MessageId)
	assert.Equal(t, "job:G1:0", p.CorrelationId)
	assert.Equal(t, amqp.Persistent, p.DeliveryMode)
	assert.Equal(t, "application/json", p.ContentType)
	assert.Equal(t, []byte("{}"), p.Body)

	bare := publishing([]byte("x"), ApplyPublishOptions())
	assert.Empty(t, bare.MessageId)
	assert.Empty(t, bare.CorrelationId)
}
