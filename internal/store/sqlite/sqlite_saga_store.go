package sqlite

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

// SQLiteSagaStore keeps sagas in a single SQLite file. Each transaction runs
// BEGIN IMMEDIATE on a dedicated connection, so writers are serialized by
// the database write lock.
type SQLiteSagaStore struct {
	db *sql.DB
}

func NewSQLiteSagaStore(db *sql.DB) *SQLiteSagaStore {
	return &SQLiteSagaStore{db: db}
}

func (s *SQLiteSagaStore) Begin(ctx context.Context) (store.Tx, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire sqlite conn: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("begin immediate: %w", err)
	}
	return &sqliteTx{conn: conn}, nil
}

func (s *SQLiteSagaStore) Find(ctx context.Context, kind state.SagaKind, correlationID string) (*store.SagaInstance, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM saga_instances WHERE kind = ? AND correlation_id = ?`, kind, correlationID)
	return scanInstance(row)
}

func (s *SQLiteSagaStore) List(ctx context.Context, kind state.SagaKind, page int, pageSize int) (*types.PaginationResult[store.SagaInstance], error) {
	page, pageSize, offset := store.NormalizePage(page, pageSize)

	var totalItems int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM saga_instances WHERE kind = ?`, kind).Scan(&totalItems); err != nil {
		return nil, fmt.Errorf("count saga instances: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+columns+` FROM saga_instances
		WHERE kind = ?
		ORDER BY created_at DESC, correlation_id
		LIMIT ? OFFSET ?`, kind, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list saga instances: %w", err)
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

func (s *SQLiteSagaStore) PurgeFinished(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM saga_instances
		WHERE finished_at IS NOT NULL AND finished_at < ?`, formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("purge finished sagas: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteSagaStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type sqliteTx struct {
	conn *sql.Conn
	done bool
}

func (t *sqliteTx) Create(ctx context.Context, instance *store.SagaInstance) error {
	res, err := t.conn.ExecContext(ctx, `INSERT INTO saga_instances (`+columns+`)
		VALUES (?, ?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT (kind, correlation_id) DO NOTHING`,
		instance.Kind, instance.CorrelationID, instance.CurrentState, string(instance.Data),
		formatTime(instance.CreatedAt), formatTime(instance.CreatedAt), nullTime(instance.FinishedAt))
	if err != nil {
		return fmt.Errorf("insert saga instance: %w", err)
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

func (t *sqliteTx) LoadForUpdate(ctx context.Context, kind state.SagaKind, correlationID string) (*store.SagaInstance, error) {
	row := t.conn.QueryRowContext(ctx, `SELECT `+columns+` FROM saga_instances WHERE kind = ? AND correlation_id = ?`, kind, correlationID)
	return scanInstance(row)
}

func (t *sqliteTx) Save(ctx context.Context, instance *store.SagaInstance) error {
	res, err := t.conn.ExecContext(ctx, `UPDATE saga_instances
		SET current_state = ?, data = ?, version = version + 1, updated_at = ?, finished_at = ?
		WHERE kind = ? AND correlation_id = ? AND version = ?`,
		instance.CurrentState, string(instance.Data), formatTime(instance.UpdatedAt), nullTime(instance.FinishedAt),
		instance.Kind, instance.CorrelationID, instance.Version)
	if err != nil {
		return fmt.Errorf("update saga instance: %w", err)
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

func (t *sqliteTx) Delete(ctx context.Context, kind state.SagaKind, correlationID string) error {
	if _, err := t.conn.ExecContext(ctx, `DELETE FROM saga_instances WHERE kind = ? AND correlation_id = ?`, kind, correlationID); err != nil {
		return fmt.Errorf("delete saga instance: %w", err)
	}
	return nil
}

func (t *sqliteTx) Commit() error {
	return t.finish("COMMIT")
}

func (t *sqliteTx) Rollback() error {
	return t.finish("ROLLBACK")
}

func (t *sqliteTx) finish(statement string) error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.conn.Close()
	if _, err := t.conn.ExecContext(context.Background(), statement); err != nil {
		return fmt.Errorf("%s: %w", statement, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstance(row rowScanner) (*store.SagaInstance, error) {
	var (
		instance  store.SagaInstance
		data      string
		createdAt string
		updatedAt string
		finished  sql.NullString
	)
	err := row.Scan(&instance.Kind, &instance.CorrelationID, &instance.CurrentState, &data,
		&instance.Version, &createdAt, &updatedAt, &finished)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("scan saga instance: %w", err)
	}
	instance.Data = []byte(data)
	if instance.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if instance.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if finished.Valid {
		t, err := parseTime(finished.String)
		if err != nil {
			return nil, err
		}
		instance.FinishedAt = &t
	}
	return &instance, nil
}

// Timestamps are stored as fixed-width UTC text so that string comparison
// orders them chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}
