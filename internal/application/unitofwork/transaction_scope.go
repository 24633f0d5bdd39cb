// Package unitofwork defines the atomic unit of work shared by the
// fulfillment and stock-maintenance services.
package unitofwork

import (
	"context"

	"github.com/medrx/backend/internal/domain/fulfillment"
	"github.com/medrx/backend/internal/domain/inventory"
)

// TransactionScope provides transactional access to repositories.
// All repository operations inside fn are committed together if fn returns
// nil and rolled back together otherwise. Row locks taken inside fn are held
// until Execute returns.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories are the repositories bound to one unit of work
type TransactionalRepositories interface {
	BatchRepo() inventory.BatchRepository
	LedgerRepo() inventory.LedgerRepository
	RequestRepo() fulfillment.RequestRepository
}
