package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/RezaEskandarii/jobsaga/internal/state"
	"github.com/RezaEskandarii/jobsaga/internal/store"
	"github.com/RezaEskandarii/jobsaga/types"
)

const columns = `kind, correlation_id, current_state, data, version, created_at, updated_at, finished_at`

type PostgresSagaStore struct {
	db *sql.DB
}

func NewPostgresSagaStore(db *sql.DB) *PostgresSagaStore {
	return &PostgresSagaStore{db: db}
}

func (s *PostgresSagaStore) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin saga transaction: %w", err)
	}
	return &postgresTx{tx: tx}, nil
}

func (s *PostgresSagaStore) Find(ctx context.Context, kind state.SagaKind, correlationID string) (*store.SagaInstance, error) {
	query := `SELECT ` + columns + `
		FROM jobsaga_schema.saga_instances
		WHERE kind = $1 AND correlation_id = $2`
	return scanInstance(s.db.QueryRowContext(ctx, query, kind, correlationID))
}

func (s *PostgresSagaStore) List(ctx context.Context, kind state.SagaKind, page int, pageSize int) (*types.PaginationResult[store.SagaInstance], error) {
	page, pageSize, offset := store.NormalizePage(page, pageSize)

	var totalItems int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobsaga_schema.saga_instances WHERE kind = $1`, kind).Scan(&totalItems)
	if err != nil {
		return nil, fmt.Errorf("failed to count saga instances: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+columns+`
		FROM jobsaga_schema.saga_instances
		WHERE kind = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, kind, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list saga instances: %w", err)
	}
	defer rows.Close()

	var items []store.SagaInstance
	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *instance)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return types.NewPaginationResult(items, totalItems, page, pageSize), nil
}

func (s *PostgresSagaStore) PurgeFinished(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM jobsaga_schema.saga_instances
		WHERE finished_at IS NOT NULL AND finished_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge finished sagas: %w", err)
	}
	return res.RowsAffected()
}

func (s *PostgresSagaStore) Close() error {
	return s.db.Close()
}

type postgresTx struct {
	tx *sql.Tx
}

func (t *postgresTx) Create(ctx context.Context, instance *store.SagaInstance) error {
	query := `
		INSERT INTO jobsaga_schema.saga_instances (` + columns + `)
		VALUES ($1, $2, $3, $4, 1, $5, $5, $6)
		ON CONFLICT (kind, correlation_id) DO NOTHING`

	res, err := t.tx.ExecContext(ctx, query,
		instance.Kind, instance.CorrelationID, instance.CurrentState, []byte(instance.Data),
		instance.CreatedAt, nullTime(instance.FinishedAt))
	if err != nil {
		return fmt.Errorf("failed to insert saga instance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrAlreadyExists
	}
	instance.Version = 1
	instance.UpdatedAt = instance.CreatedAt
	return nil
}

func (t *postgresTx) LoadForUpdate(ctx context.Context, kind state.SagaKind, correlationID string) (*store.SagaInstance, error) {
	query := `SELECT ` + columns + `
		FROM jobsaga_schema.saga_instances
		WHERE kind = $1 AND correlation_id = $2
		FOR UPDATE`
	return scanInstance(t.tx.QueryRowContext(ctx, query, kind, correlationID))
}

func (t *postgresTx) Save(ctx context.Context, instance *store.SagaInstance) error {
	query := `
		UPDATE jobsaga_schema.saga_instances
		SET current_state = $3,
		    data = $4,
		    version = version + 1,
		    updated_at = $5,
		    finished_at = $6
		WHERE kind = $1 AND correlation_id = $2 AND version = $7`

	res, err := t.tx.ExecContext(ctx, query,
		instance.Kind, instance.CorrelationID, instance.CurrentState, []byte(instance.Data),
		instance.UpdatedAt, nullTime(instance.FinishedAt), instance.Version)
	if err != nil {
		return fmt.Errorf("failed to update saga instance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrConcurrencyConflict
	}
	instance.Version++
	return nil
}

func (t *postgresTx) Delete(ctx context.Context, kind state.SagaKind, correlationID string) error {
	_, err := t.tx.ExecContext(ctx, `
		DELETE FROM jobsaga_schema.saga_instances
		WHERE kind = $1 AND correlation_id = $2`, kind, correlationID)
	if err != nil {
		return fmt.Errorf("failed to delete saga instance: %w", err)
	}
	return nil
}

func (t *postgresTx) Commit() error {
	return t.tx.Commit()
}

func (t *postgresTx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstance(row rowScanner) (*store.SagaInstance, error) {
	var (
		instance store.SagaInstance
		data     []byte
		finished sql.NullTime
	)
	err := row.Scan(&instance.Kind, &instance.CorrelationID, &instance.CurrentState, &data,
		&instance.Version, &instance.CreatedAt, &instance.UpdatedAt, &finished)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan saga instance: %w", err)
	}
	instance.Data = data
	if finished.Valid {
		t := finished.Time
		instance.FinishedAt = &t
	}
	return &instance, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
