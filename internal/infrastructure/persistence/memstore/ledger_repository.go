package memstore

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/medrx/backend/internal/domain/inventory"
	"github.com/medrx/backend/internal/domain/shared"
)

// LedgerRepository implements inventory.LedgerRepository
type LedgerRepository struct {
	store *Store
	tx    *tx
}

// Append writes entries after verifying their arithmetic
func (r *LedgerRepository) Append(_ context.Context, entries ...*inventory.LedgerEntry) error {
	staged := make([]inventory.LedgerEntry, 0, len(entries))
	for _, e := range entries {
		if err := e.Verify(); err != nil {
			return err
		}
		staged = append(staged, *e)
	}
	if r.tx != nil {
		r.tx.ledger = append(r.tx.ledger, staged...)
		return nil
	}
	r.store.mu.Lock()
	r.store.ledger = append(r.store.ledger, staged...)
	r.store.mu.Unlock()
	return nil
}

// ListByBatch returns a batch's entries oldest first
func (r *LedgerRepository) ListByBatch(_ context.Context, batchID uuid.UUID, filter shared.Filter) ([]inventory.LedgerEntry, int64, error) {
	out := r.collect(func(e inventory.LedgerEntry) bool { return e.BatchID == batchID })
	return page(out, filter), int64(len(out)), nil
}

// ListByReference returns entries carrying reference
func (r *LedgerRepository) ListByReference(_ context.Context, reference string) ([]inventory.LedgerEntry, error) {
	return r.collect(func(e inventory.LedgerEntry) bool { return e.Reference == reference }), nil
}

func (r *LedgerRepository) collect(match func(inventory.LedgerEntry) bool) []inventory.LedgerEntry {
	r.store.mu.RLock()
	out := make([]inventory.LedgerEntry, 0)
	for _, e := range r.store.ledger {
		if match(e) {
			out = append(out, e)
		}
	}
	r.store.mu.RUnlock()
	if r.tx != nil {
		for _, e := range r.tx.ledger {
			if match(e) {
				out = append(out, e)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

var _ inventory.LedgerRepository = (*LedgerRepository)(nil)
