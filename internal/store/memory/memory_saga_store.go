package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/RezaEskandarii/jobsaga/internal/state"
	"github.com/RezaEskandarii/jobsaga/internal/store"
	"github.com/RezaEskandarii/jobsaga/types"
)

type key struct {
	kind state.SagaKind
	id   string
}

// MemorySagaStore keeps saga instances in process. A transaction holds an
// exclusive per-instance lock from first touch until Commit or Rollback.
type MemorySagaStore struct {
	mu    sync.Mutex
	rows  map[key]store.SagaInstance
	locks map[key]chan struct{}
}

func NewMemorySagaStore() *MemorySagaStore {
	return &MemorySagaStore{
		rows:  make(map[key]store.SagaInstance),
		locks: make(map[key]chan struct{}),
	}
}

func (s *MemorySagaStore) Begin(ctx context.Context) (store.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memoryTx{
		store:  s,
		held:   make(map[key]struct{}),
		staged: make(map[key]*store.SagaInstance),
	}, nil
}

func (s *MemorySagaStore) Find(ctx context.Context, kind state.SagaKind, correlationID string) (*store.SagaInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[key{kind, correlationID}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(&row), nil
}

func (s *MemorySagaStore) List(ctx context.Context, kind state.SagaKind, page int, pageSize int) (*types.PaginationResult[store.SagaInstance], error) {
	page, pageSize, offset := store.NormalizePage(page, pageSize)

	s.mu.Lock()
	var all []store.SagaInstance
	for k, row := range s.rows {
		if k.kind == kind {
			all = append(all, *clone(&row))
		}
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CorrelationID < all[j].CorrelationID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	var items []store.SagaInstance
	if offset < len(all) {
		end := offset + pageSize
		if end > len(all) {
			end = len(all)
		}
		items = all[offset:end]
	}
	return types.NewPaginationResult(items, len(all), page, pageSize), nil
}

// PurgeFinished skips instances currently locked by an open transaction.
func (s *MemorySagaStore) PurgeFinished(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for k, row := range s.rows {
		if row.FinishedAt == nil || !row.FinishedAt.Before(before) {
			continue
		}
		lock := s.lockFor(k)
		select {
		case lock <- struct{}{}:
			delete(s.rows, k)
			<-lock
			purged++
		default:
		}
	}
	return purged, nil
}

func (s *MemorySagaStore) Close() error {
	return nil
}

// lockFor must be called with s.mu held.
func (s *MemorySagaStore) lockFor(k key) chan struct{} {
	lock, ok := s.locks[k]
	if !ok {
		lock = make(chan struct{}, 1)
		s.locks[k] = lock
	}
	return lock
}

type memoryTx struct {
	store  *MemorySagaStore
	held   map[key]struct{}
	staged map[key]*store.SagaInstance
	done   bool
}

func (t *memoryTx) lock(ctx context.Context, k key) error {
	if _, ok := t.held[k]; ok {
		return nil
	}
	t.store.mu.Lock()
	lock := t.store.lockFor(k)
	t.store.mu.Unlock()

	select {
	case lock <- struct{}{}:
		t.held[k] = struct{}{}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// current returns the instance as this transaction sees it.
func (t *memoryTx) current(k key) (*store.SagaInstance, bool) {
	if staged, ok := t.staged[k]; ok {
		return staged, staged != nil
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	row, ok := t.store.rows[k]
	if !ok {
		return nil, false
	}
	return &row, true
}

func (t *memoryTx) Create(ctx context.Context, instance *store.SagaInstance) error {
	k := key{instance.Kind, instance.CorrelationID}
	if err := t.lock(ctx, k); err != nil {
		return err
	}
	if _, exists := t.current(k); exists {
		return store.ErrAlreadyExists
	}
	instance.Version = 1
	instance.UpdatedAt = instance.CreatedAt
	t.staged[k] = clone(instance)
	return nil
}

func (t *memoryTx) LoadForUpdate(ctx context.Context, kind state.SagaKind, correlationID string) (*store.SagaInstance, error) {
	k := key{kind, correlationID}
	if err := t.lock(ctx, k); err != nil {
		return nil, err
	}
	row, ok := t.current(k)
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(row), nil
}

func (t *memoryTx) Save(ctx context.Context, instance *store.SagaInstance) error {
	k := key{instance.Kind, instance.CorrelationID}
	if err := t.lock(ctx, k); err != nil {
		return err
	}
	row, ok := t.current(k)
	if !ok || row.Version != instance.Version {
		return store.ErrConcurrencyConflict
	}
	instance.Version++
	t.staged[k] = clone(instance)
	return nil
}

func (t *memoryTx) Delete(ctx context.Context, kind state.SagaKind, correlationID string) error {
	k := key{kind, correlationID}
	if err := t.lock(ctx, k); err != nil {
		return err
	}
	t.staged[k] = nil
	return nil
}

func (t *memoryTx) Commit() error {
	if t.done {
		return nil
	}
	t.store.mu.Lock()
	for k, row := range t.staged {
		if row == nil {
			delete(t.store.rows, k)
			continue
		}
		t.store.rows[k] = *row
	}
	t.store.mu.Unlock()
	t.release()
	return nil
}

func (t *memoryTx) Rollback() error {
	if t.done {
		return nil
	}
	t.release()
	return nil
}

func (t *memoryTx) release() {
	t.done = true
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for k := range t.held {
		<-t.store.locks[k]
	}
	t.held = nil
	t.staged = nil
}

func clone(instance *store.SagaInstance) *store.SagaInstance {
	c := *instance
	c.Data = append([]byte(nil), instance.Data...)
	if instance.FinishedAt != nil {
		finished := *instance.FinishedAt
		c.FinishedAt = &finished
	}
	return &c
}
