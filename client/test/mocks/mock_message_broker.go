package mocks

import (
	"context"

	"github.com/RezaEskandarii/jobsaga/internal/message_broaker"
)

// MockMessageBroker is a mock implementation of message_broaker.MessageBroker for testing.
type MockMessageBroker struct {
	DeclareQueuesFunc func(ctx context.Context, queues ...message_broaker.QueueSpec) error
	PublishFunc       func(ctx context.Context, routingKey string, message []byte, opts ...message_broaker.PublishOption) error
	ConsumeFunc       func(ctx context.Context, queue string) (<-chan message_broaker.Delivery, error)
	CloseFunc         func() error
}

func (m *MockMessageBroker) DeclareQueues(ctx context.Context, queues ...message_broaker.QueueSpec) error {
	if m.DeclareQueuesFunc != nil {
		return m.DeclareQueuesFunc(ctx, queues...)
	}
	return nil
}

func (m *MockMessageBroker) Publish(ctx context.Context, routingKey string, message []byte, opts ...message_broaker.PublishOption) error {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, routingKey, message, opts...)
	}
	return nil
}

func (m *MockMessageBroker) Consume(ctx context.Context, queue string) (<-chan message_broaker.Delivery, error) {
	if m.ConsumeFunc != nil {
		return m.ConsumeFunc(ctx, queue)
	}
	ch := make(chan message_broaker.Delivery)
	close(ch)
	return ch, nil
}

func (m *MockMessageBroker) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}
