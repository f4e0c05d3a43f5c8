package mocks

import (
	"context"
	"sync"

	"github.com/RezaEskandarii/jobsaga/internal/saga"
)

// MockPublisher records published envelopes.
type MockPublisher struct {
	PublishFunc func(ctx context.Context, env saga.Envelope) error

	mu        sync.Mutex
	Published []saga.Envelope
}

func (m *MockPublisher) Publish(ctx context.Context, env saga.Envelope) error {
	if m.PublishFunc != nil {
		if err := m.PublishFunc(ctx, env); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Published = append(m.Published, env)
	return nil
}

func (m *MockPublisher) Envelopes() []saga.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]saga.Envelope(nil), m.Published...)
}
