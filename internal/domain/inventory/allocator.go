package inventory

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/medrx/backend/internal/domain/shared"
)

// Allocation is one (batch, amount) pair of an allocation plan
type Allocation struct {
	BatchID    uuid.UUID `json:"batch_id"`
	FacilityID uuid.UUID `json:"facility_id"`
	Quantity   int64     `json:"quantity"`
	// Available is the batch quantity seen when the plan was made
	Available int64 `json:"available"`
}

// AllocationPlan is the ephemeral result of allocating one line item.
// Allocations are ordered FIFO by receipt with FEFO as tiebreak.
type AllocationPlan struct {
	MedicationID   uuid.UUID    `json:"medication_id"`
	MedicationName string       `json:"medication_name,omitempty"`
	Required       int64        `json:"required"`
	Allocations    []Allocation `json:"allocations"`
	Sufficient     bool         `json:"sufficient"`
	TotalAvailable int64        `json:"total_available"`
	Shortfall      int64        `json:"shortfall"`
}

// Allocated returns the sum of the planned amounts
func (p *AllocationPlan) Allocated() int64 {
	var total int64
	for _, a := range p.Allocations {
		total += a.Quantity
	}
	return total
}

// PlanAllocation walks the eligible batches in FIFO/FEFO order, taking
// min(remaining, quantity) from each until the requirement is met or the
// batches run out. It has no side effects and never mutates the input.
func PlanAllocation(medicationID uuid.UUID, required int64, batches []InventoryBatch) AllocationPlan {
	eligible := filterAllocatableBatches(medicationID, batches)
	SortForAllocation(eligible)

	plan := AllocationPlan{
		MedicationID: medicationID,
		Required:     required,
		Allocations:  make([]Allocation, 0),
	}

	remaining := required
	for i := range eligible {
		b := &eligible[i]
		plan.TotalAvailable += b.Quantity
		if plan.MedicationName == "" {
			plan.MedicationName = b.MedicationName
		}
		if remaining <= 0 {
			continue
		}
		take := min(remaining, b.Quantity)
		plan.Allocations = append(plan.Allocations, Allocation{
			BatchID:    b.ID,
			FacilityID: b.FacilityID,
			Quantity:   take,
			Available:  b.Quantity,
		})
		remaining -= take
	}

	plan.Sufficient = remaining <= 0
	if !plan.Sufficient {
		plan.Shortfall = remaining
	}
	return plan
}

// SortForAllocation orders batches by received time, then expiry date
// (batches without expiry last), then ID so that equal keys are deterministic.
func SortForAllocation(batches []InventoryBatch) {
	sort.SliceStable(batches, func(i, j int) bool {
		a, b := &batches[i], &batches[j]
		if !a.ReceivedAt.Equal(b.ReceivedAt) {
			return a.ReceivedAt.Before(b.ReceivedAt)
		}
		switch {
		case a.ExpiryDate != nil && b.ExpiryDate != nil:
			if !a.ExpiryDate.Equal(*b.ExpiryDate) {
				return a.ExpiryDate.Before(*b.ExpiryDate)
			}
		case a.ExpiryDate != nil:
			return true
		case b.ExpiryDate != nil:
			return false
		}
		return bytes.Compare(a.ID[:], b.ID[:]) < 0
	})
}

func filterAllocatableBatches(medicationID uuid.UUID, batches []InventoryBatch) []InventoryBatch {
	result := make([]InventoryBatch, 0, len(batches))
	for _, b := range batches {
		if b.MedicationID == medicationID && b.IsAllocatable() {
			result = append(result, b)
		}
	}
	return result
}

// BatchReader is the read side of the batch store used for lock-free planning
type BatchReader interface {
	FindEligible(ctx context.Context, medicationID, facilityID uuid.UUID) ([]InventoryBatch, error)
}

// Allocator plans line items against a lock-free snapshot of the batch store.
// The snapshot may be stale; callers re-validate under lock before committing.
type Allocator struct {
	reader        BatchReader
	expiryCutoff  func() time.Time
	excludeExpiry bool
}

// AllocatorOption configures an Allocator
type AllocatorOption func(*Allocator)

// WithExpiredBatchesExcluded skips batches whose expiry date is before now()
func WithExpiredBatchesExcluded(now func() time.Time) AllocatorOption {
	return func(a *Allocator) {
		a.excludeExpiry = true
		a.expiryCutoff = now
	}
}

// NewAllocator creates a new allocator over reader
func NewAllocator(reader BatchReader, opts ...AllocatorOption) *Allocator {
	a := &Allocator{reader: reader}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Allocate plans required units of medicationID. facilityID scopes the pool
// to one facility; uuid.Nil means every facility.
func (a *Allocator) Allocate(ctx context.Context, medicationID, facilityID uuid.UUID, required int64) (*AllocationPlan, error) {
	return a.AllocateWith(ctx, medicationID, facilityID, required, nil)
}

// Reservations maps batch IDs to units already promised to earlier line
// items of the same request
type Reservations map[uuid.UUID]int64

// Add records a plan's allocations
func (r Reservations) Add(plan *AllocationPlan) {
	for _, alloc := range plan.Allocations {
		r[alloc.BatchID] += alloc.Quantity
	}
}

// AllocateWith is Allocate against a pool from which held units have already
// been taken
func (a *Allocator) AllocateWith(ctx context.Context, medicationID, facilityID uuid.UUID, required int64, held Reservations) (*AllocationPlan, error) {
	if required <= 0 {
		return nil, shared.ErrInvalidQuantity
	}

	batches, err := a.reader.FindEligible(ctx, medicationID, facilityID)
	if err != nil {
		return nil, err
	}

	var cutoff time.Time
	if a.excludeExpiry {
		cutoff = a.expiryCutoff()
	}

	pool := make([]InventoryBatch, 0, len(batches))
	for _, b := range batches {
		if a.excludeExpiry && b.IsExpiredAt(cutoff) {
			continue
		}
		if n := held[b.ID]; n > 0 {
			b.Quantity = max(b.Quantity-n, 0)
		}
		pool = append(pool, b)
	}

	plan := PlanAllocation(medicationID, required, pool)
	return &plan, nil
}
