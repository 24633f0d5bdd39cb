package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/medrx/backend/internal/domain/inventory"
	"github.com/medrx/backend/internal/domain/shared"
)

// BatchRepository implements inventory.BatchRepository. Without a unit of
// work it reads and writes committed state directly.
type BatchRepository struct {
	store *Store
	tx    *tx
}

// FindByID finds a batch by ID
func (r *BatchRepository) FindByID(_ context.Context, id uuid.UUID) (*inventory.InventoryBatch, error) {
	if r.tx != nil {
		if b, ok := r.tx.batches[id]; ok {
			return &b, nil
		}
	}
	r.store.mu.RLock()
	b, ok := r.store.batches[id]
	r.store.mu.RUnlock()
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &b, nil
}

// FindEligible returns Active batches with stock for a medication at a facility
func (r *BatchRepository) FindEligible(ctx context.Context, medicationID, facilityID uuid.UUID) ([]inventory.InventoryBatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]inventory.InventoryBatch, 0)
	for _, b := range r.store.batches {
		if b.MedicationID != medicationID {
			continue
		}
		if facilityID != uuid.Nil && b.FacilityID != facilityID {
			continue
		}
		if !b.IsAllocatable() {
			continue
		}
		out = append(out, b)
	}
	inventory.SortForAllocation(out)
	return out, nil
}

// List returns batches matching the filter, oldest receipt first
func (r *BatchRepository) List(_ context.Context, filter shared.Filter) ([]inventory.InventoryBatch, int64, error) {
	r.store.mu.RLock()
	all := make([]inventory.InventoryBatch, 0, len(r.store.batches))
	for _, b := range r.store.batches {
		if matchesBatch(b, filter.Filters) {
			all = append(all, b)
		}
	}
	r.store.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].ReceivedAt.Equal(all[j].ReceivedAt) {
			return all[i].ReceivedAt.Before(all[j].ReceivedAt)
		}
		return all[i].ID.String() < all[j].ID.String()
	})
	return page(all, filter), int64(len(all)), nil
}

func matchesBatch(b inventory.InventoryBatch, filters map[string]interface{}) bool {
	for key, v := range filters {
		switch key {
		case "medication_id":
			if id, ok := asUUID(v); ok && b.MedicationID != id {
				return false
			}
		case "facility_id":
			if id, ok := asUUID(v); ok && b.FacilityID != id {
				return false
			}
		case "status":
			if s, ok := v.(string); ok && s != "" && string(b.Status) != s {
				return false
			}
			if s, ok := v.(inventory.BatchStatus); ok && b.Status != s {
				return false
			}
		}
	}
	return true
}

func asUUID(v interface{}) (uuid.UUID, bool) {
	switch t := v.(type) {
	case uuid.UUID:
		return t, t != uuid.Nil
	case string:
		id, err := uuid.Parse(t)
		return id, err == nil
	}
	return uuid.Nil, false
}

// LockForUpdate locks ids in ascending order and returns their state. The
// timeout bounds acquiring the whole set, not each lock.
func (r *BatchRepository) LockForUpdate(ctx context.Context, ids []uuid.UUID, timeout time.Duration) ([]inventory.InventoryBatch, error) {
	if r.tx == nil {
		return nil, shared.NewDomainError("NO_TRANSACTION", "LockForUpdate requires a unit of work")
	}
	sorted := inventory.SortIDs(ids)

	r.store.mu.RLock()
	hook := r.store.lockHook
	r.store.mu.RUnlock()
	if hook != nil {
		hook(ctx, sorted)
	}

	deadline := time.Now().Add(timeout)
	for _, id := range sorted {
		if err := r.tx.lock(ctx, id, time.Until(deadline)); err != nil {
			return nil, err
		}
	}

	out := make([]inventory.InventoryBatch, 0, len(sorted))
	for _, id := range sorted {
		b, err := r.FindByID(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, *b)
	}
	return out, nil
}

// Create inserts a new batch
func (r *BatchRepository) Create(_ context.Context, batch *inventory.InventoryBatch) error {
	if r.tx != nil {
		if _, ok := r.tx.batches[batch.ID]; ok {
			return shared.ErrAlreadyExists
		}
		r.tx.batches[batch.ID] = *batch
		r.tx.created[batch.ID] = struct{}{}
		return nil
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.batches[batch.ID]; ok {
		return shared.ErrAlreadyExists
	}
	r.store.batches[batch.ID] = *batch
	return nil
}

// Save updates an existing batch
func (r *BatchRepository) Save(ctx context.Context, batch *inventory.InventoryBatch) error {
	if _, err := r.FindByID(ctx, batch.ID); err != nil {
		return err
	}
	if r.tx != nil {
		r.tx.batches[batch.ID] = *batch
		return nil
	}
	r.store.mu.Lock()
	r.store.batches[batch.ID] = *batch
	r.store.mu.Unlock()
	return nil
}

// SetAlertSent updates only the alert flag
func (r *BatchRepository) SetAlertSent(ctx context.Context, id uuid.UUID, sent bool) error {
	if r.tx != nil {
		b, err := r.FindByID(ctx, id)
		if err != nil {
			return err
		}
		b.AlertSent = sent
		r.tx.batches[id] = *b
		return nil
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	b, ok := r.store.batches[id]
	if !ok {
		return shared.ErrNotFound
	}
	b.AlertSent = sent
	r.store.batches[id] = b
	return nil
}

var _ inventory.BatchRepository = (*BatchRepository)(nil)
