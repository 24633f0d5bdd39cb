// Package memstore is an in-process implementation of the batch store,
// ledger, request and alert repositories. Units of work stage their writes
// and apply them atomically on commit; batch and request locks are per-ID
// and time out like a database lock_timeout.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/medrx/backend/internal/application/unitofwork"
	"github.com/medrx/backend/internal/domain/alert"
	"github.com/medrx/backend/internal/domain/fulfillment"
	"github.com/medrx/backend/internal/domain/inventory"
	"github.com/medrx/backend/internal/domain/shared"
)

// DefaultRequestLockTimeout bounds how long a unit of work waits for a
// request lock
const DefaultRequestLockTimeout = 5 * time.Second

// LockHook runs before batch locks are taken. Tests use it to interleave
// writers between planning and commit.
type LockHook func(ctx context.Context, ids []uuid.UUID)

// Store holds committed state
type Store struct {
	mu       sync.RWMutex
	batches  map[uuid.UUID]inventory.InventoryBatch
	ledger   []inventory.LedgerEntry
	requests map[uuid.UUID]fulfillment.Request
	alerts   []alert.LowStockAlert

	locks              *lockTable
	requestLockTimeout time.Duration
	lockHook           LockHook
}

// New creates an empty store
func New() *Store {
	return &Store{
		batches:            make(map[uuid.UUID]inventory.InventoryBatch),
		requests:           make(map[uuid.UUID]fulfillment.Request),
		locks:              newLockTable(),
		requestLockTimeout: DefaultRequestLockTimeout,
	}
}

// WithRequestLockTimeout sets the request lock wait bound
func (s *Store) WithRequestLockTimeout(d time.Duration) *Store {
	if d > 0 {
		s.requestLockTimeout = d
	}
	return s
}

// WithLockHook installs a hook that runs before batch locks are taken
func (s *Store) WithLockHook(h LockHook) *Store {
	s.mu.Lock()
	s.lockHook = h
	s.mu.Unlock()
	return s
}

// Batches returns a repository over committed batch state
func (s *Store) Batches() *BatchRepository {
	return &BatchRepository{store: s}
}

// Ledger returns a repository over committed ledger state
func (s *Store) Ledger() *LedgerRepository {
	return &LedgerRepository{store: s}
}

// Requests returns a repository over committed request state
func (s *Store) Requests() *RequestRepository {
	return &RequestRepository{store: s}
}

// Alerts returns the alert history repository
func (s *Store) Alerts() *AlertRepository {
	return &AlertRepository{store: s}
}

// Execute runs fn in a unit of work. Staged writes are applied together when
// fn returns nil; locks are released when Execute returns.
func (s *Store) Execute(ctx context.Context, fn func(repos unitofwork.TransactionalRepositories) error) error {
	work := newTx(s)
	defer work.release()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(work); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return work.commit()
}

// tx is one unit of work
type tx struct {
	store    *Store
	held     []uuid.UUID
	heldSet  map[uuid.UUID]struct{}
	batches  map[uuid.UUID]inventory.InventoryBatch
	created  map[uuid.UUID]struct{}
	ledger   []inventory.LedgerEntry
	requests map[uuid.UUID]fulfillment.Request
}

func newTx(s *Store) *tx {
	return &tx{
		store:    s,
		heldSet:  make(map[uuid.UUID]struct{}),
		batches:  make(map[uuid.UUID]inventory.InventoryBatch),
		created:  make(map[uuid.UUID]struct{}),
		requests: make(map[uuid.UUID]fulfillment.Request),
	}
}

func (t *tx) BatchRepo() inventory.BatchRepository {
	return &BatchRepository{store: t.store, tx: t}
}

func (t *tx) LedgerRepo() inventory.LedgerRepository {
	return &LedgerRepository{store: t.store, tx: t}
}

func (t *tx) RequestRepo() fulfillment.RequestRepository {
	return &RequestRepository{store: t.store, tx: t}
}

func (t *tx) lock(ctx context.Context, id uuid.UUID, timeout time.Duration) error {
	if _, ok := t.heldSet[id]; ok {
		return nil
	}
	if err := t.store.locks.acquire(ctx, id, timeout); err != nil {
		return err
	}
	t.heldSet[id] = struct{}{}
	t.held = append(t.held, id)
	return nil
}

func (t *tx) release() {
	for i := len(t.held) - 1; i >= 0; i-- {
		t.store.locks.release(t.held[i])
	}
	t.held = nil
	t.heldSet = map[uuid.UUID]struct{}{}
}

func (t *tx) commit() error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range t.created {
		if _, exists := s.batches[id]; exists {
			return shared.ErrAlreadyExists
		}
	}
	for id, b := range t.batches {
		s.batches[id] = b
	}
	s.ledger = append(s.ledger, t.ledger...)
	for id, r := range t.requests {
		s.requests[id] = r
	}
	return nil
}

// lockTable hands out one exclusive lock per ID
type lockTable struct {
	mu    sync.Mutex
	locks map[uuid.UUID]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[uuid.UUID]chan struct{})}
}

func (l *lockTable) slot(id uuid.UUID) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.locks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[id] = ch
	}
	return ch
}

func (l *lockTable) acquire(ctx context.Context, id uuid.UUID, timeout time.Duration) error {
	ch := l.slot(id)
	select {
	case ch <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		return nil
	case <-timer.C:
		return shared.ErrLockTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *lockTable) release(id uuid.UUID) {
	<-l.slot(id)
}

// page applies the filter's offset and limit
func page[T any](items []T, filter shared.Filter) []T {
	off := filter.Offset()
	if off >= len(items) {
		return []T{}
	}
	end := off + filter.Limit()
	if end > len(items) {
		end = len(items)
	}
	return items[off:end]
}

var _ unitofwork.TransactionScope = (*Store)(nil)
var _ unitofwork.TransactionalRepositories = (*tx)(nil)
