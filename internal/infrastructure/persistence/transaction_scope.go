package persistence

import (
	"context"
	"time"

	"github.com/medrx/backend/internal/application/unitofwork"
	"github.com/medrx/backend/internal/domain/fulfillment"
	"github.com/medrx/backend/internal/domain/inventory"
	"github.com/medrx/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// GormTransactionScope implements unitofwork.TransactionScope using GORM transactions.
// Row locks taken through the scoped repositories are released on commit or rollback.
type GormTransactionScope struct {
	db                 *gorm.DB
	requestLockTimeout time.Duration
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db, requestLockTimeout: DefaultRequestLockTimeout}
}

// WithRequestLockTimeout sets how long a unit of work waits for a request row lock
func (s *GormTransactionScope) WithRequestLockTimeout(d time.Duration) *GormTransactionScope {
	if d > 0 {
		s.requestLockTimeout = d
	}
	return s
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// If the function succeeds, the transaction is committed.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos unitofwork.TransactionalRepositories) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx, requestLockTimeout: s.requestLockTimeout})
	})
	return translateError(err, shared.ErrAlreadyExists)
}

// gormTransactionalRepositories provides access to all repositories within a transaction.
type gormTransactionalRepositories struct {
	tx                 *gorm.DB
	requestLockTimeout time.Duration
}

// BatchRepo returns the batch repository scoped to the current transaction.
func (r *gormTransactionalRepositories) BatchRepo() inventory.BatchRepository {
	return NewGormBatchRepository(r.tx).WithTx(r.tx)
}

// LedgerRepo returns the ledger repository scoped to the current transaction.
func (r *gormTransactionalRepositories) LedgerRepo() inventory.LedgerRepository {
	return NewGormLedgerRepository(r.tx)
}

// RequestRepo returns the request repository scoped to the current transaction.
func (r *gormTransactionalRepositories) RequestRepo() fulfillment.RequestRepository {
	return NewGormRequestRepository(r.tx).WithLockTimeout(r.requestLockTimeout).WithTx(r.tx)
}

// Ensure GormTransactionScope implements TransactionScope
var _ unitofwork.TransactionScope = (*GormTransactionScope)(nil)

// Ensure gormTransactionalRepositories implements TransactionalRepositories
var _ unitofwork.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
