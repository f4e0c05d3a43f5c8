package mocks

import (
	"context"
	"time"

	"github.com/RezaEskandarii/jobsaga/internal/state"
	"github.com/RezaEskandarii/jobsaga/internal/store"
	"github.com/RezaEskandarii/jobsaga/types"
)

// MockSagaStore is a mock implementation of store.SagaStore.
type MockSagaStore struct {
	BeginFunc         func(ctx context.Context) (store.Tx, error)
	FindFunc          func(ctx context.Context, kind state.SagaKind, correlationID string) (*store.SagaInstance, error)
	ListFunc          func(ctx context.Context, kind state.SagaKind, page int, pageSize int) (*types.PaginationResult[store.SagaInstance], error)
	PurgeFinishedFunc func(ctx context.Context, before time.Time) (int64, error)
	CloseFunc         func() error
}

func (m *MockSagaStore) Begin(ctx context.Context) (store.Tx, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx)
	}
	return nil, nil
}

func (m *MockSagaStore) Find(ctx context.Context, kind state.SagaKind, correlationID string) (*store.SagaInstance, error) {
	if m.FindFunc != nil {
		return m.FindFunc(ctx, kind, correlationID)
	}
	return nil, store.ErrNotFound
}

func (m *MockSagaStore) List(ctx context.Context, kind state.SagaKind, page int, pageSize int) (*types.PaginationResult[store.SagaInstance], error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, kind, page, pageSize)
	}
	return types.NewPaginationResult[store.SagaInstance](nil, 0, page, pageSize), nil
}

func (m *MockSagaStore) PurgeFinished(ctx context.Context, before time.Time) (int64, error) {
	if m.PurgeFinishedFunc != nil {
		return m.PurgeFinishedFunc(ctx, before)
	}
	return 0, nil
}

func (m *MockSagaStore) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}
