package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/RezaEskandarii/jobsaga/internal/state"
	"github.com/RezaEskandarii/jobsaga/types"
)

var (
	ErrNotFound            = errors.New("saga instance not found")
	ErrAlreadyExists       = errors.New("saga instance already exists")
	ErrConcurrencyConflict = errors.New("saga instance was modified concurrently")
)

// SagaInstance is one persisted saga: its serialized state plus bookkeeping.
type SagaInstance struct {
	Kind          state.SagaKind  `json:"kind"`
	CorrelationID string          `json:"correlation_id"`
	CurrentState  string          `json:"current_state"`
	Data          json.RawMessage `json:"data"`
	Version       int64           `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty"`
}

// SagaStore persists saga instances keyed by (kind, correlation id).
type SagaStore interface {
	// Begin opens a transaction. Instances loaded through it stay locked
	// against other transactions until Commit or Rollback.
	Begin(ctx context.Context) (Tx, error)

	// Find reads an instance without locking it.
	Find(ctx context.Context, kind state.SagaKind, correlationID string) (*SagaInstance, error)

	List(ctx context.Context, kind state.SagaKind, page int, pageSize int) (*types.PaginationResult[SagaInstance], error)

	// PurgeFinished deletes finished instances whose FinishedAt is before the given time.
	PurgeFinished(ctx context.Context, before time.Time) (int64, error)

	// Close closes the database
	Close() error
}

// Tx is a unit of work over saga instances.
type Tx interface {
	// Create inserts a new instance at version 1. It returns ErrAlreadyExists
	// when the key is taken.
	Create(ctx context.Context, instance *SagaInstance) error

	// LoadForUpdate reads and locks an instance. It returns ErrNotFound when absent.
	LoadForUpdate(ctx context.Context, kind state.SagaKind, correlationID string) (*SagaInstance, error)

	// Save writes the instance if its stored version still equals
	// instance.Version and bumps the version. A mismatch returns
	// ErrConcurrencyConflict.
	Save(ctx context.Context, instance *SagaInstance) error

	Delete(ctx context.Context, kind state.SagaKind, correlationID string) error

	Commit() error
	Rollback() error
}

// NormalizePage clamps page and pageSize and returns the row offset.
func NormalizePage(page, pageSize int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	return page, pageSize, (page - 1) * pageSize
}
