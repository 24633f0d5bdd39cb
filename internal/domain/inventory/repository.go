package inventory

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/medrx/backend/internal/domain/shared"
)

// BatchRepository is the batch store.
// Reads outside a unit of work see committed state and take no locks.
// LockForUpdate must only be called inside a unit of work; it acquires
// exclusive locks in ascending ID order and fails with shared.ErrLockTimeout
// when a lock cannot be obtained within timeout.
type BatchRepository interface {
	BatchReader

	// FindByID finds a batch by ID
	FindByID(ctx context.Context, id uuid.UUID) (*InventoryBatch, error)

	// List returns batches matching the filter.
	// Supported filter keys: medication_id, facility_id, status
	List(ctx context.Context, filter shared.Filter) ([]InventoryBatch, int64, error)

	// LockForUpdate locks the given batches and returns their current state
	LockForUpdate(ctx context.Context, ids []uuid.UUID, timeout time.Duration) ([]InventoryBatch, error)

	// Create inserts a new batch
	Create(ctx context.Context, batch *InventoryBatch) error

	// Save updates quantity, status, alert flag and version of an existing batch
	Save(ctx context.Context, batch *InventoryBatch) error

	// SetAlertSent updates only the alert flag
	SetAlertSent(ctx context.Context, id uuid.UUID, sent bool) error
}

// LedgerRepository is the append-only transaction ledger
type LedgerRepository interface {
	// Append writes entries; existing entries are never updated or deleted
	Append(ctx context.Context, entries ...*LedgerEntry) error

	// ListByBatch returns a batch's entries oldest first
	ListByBatch(ctx context.Context, batchID uuid.UUID, filter shared.Filter) ([]LedgerEntry, int64, error)

	// ListByReference returns entries carrying the given reference
	ListByReference(ctx context.Context, reference string) ([]LedgerEntry, error)
}

// SortIDs sorts ids ascending by their byte representation. This is the
// global lock order for batches.
func SortIDs(ids []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}
