package inventory

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/medrx/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// BatchStatus is the lifecycle state of an inventory batch
type BatchStatus string

const (
	BatchStatusActive   BatchStatus = "ACTIVE"
	BatchStatusDepleted BatchStatus = "DEPLETED"
	BatchStatusDisposed BatchStatus = "DISPOSED"
)

// IsValid checks if the status is a known value
func (s BatchStatus) IsValid() bool {
	switch s {
	case BatchStatusActive, BatchStatusDepleted, BatchStatusDisposed:
		return true
	}
	return false
}

// String returns the string representation
func (s BatchStatus) String() string {
	return string(s)
}

// InventoryBatch is one received lot of one medication at one facility.
// Quantity never goes negative. Status becomes Depleted exactly when a
// depletion brings quantity to zero, and Disposed only through Dispose.
type InventoryBatch struct {
	shared.BaseEntity
	FacilityID       uuid.UUID
	MedicationID     uuid.UUID
	MedicationName   string
	LotNumber        string
	Quantity         int64
	MinLevel         int64
	MaxLevel         int64
	ReorderThreshold int64
	UnitCost         decimal.Decimal
	ReceivedAt       time.Time
	ExpiryDate       *time.Time
	Status           BatchStatus
	AlertSent        bool
	Version          int
}

// ReceiptParams holds the attributes of newly received stock
type ReceiptParams struct {
	FacilityID       uuid.UUID
	MedicationID     uuid.UUID
	MedicationName   string
	LotNumber        string
	Quantity         int64
	MinLevel         int64
	MaxLevel         int64
	ReorderThreshold int64
	UnitCost         decimal.Decimal
	ReceivedAt       time.Time
	ExpiryDate       *time.Time
}

// NewInventoryBatch creates an Active batch from a stock receipt
func NewInventoryBatch(p ReceiptParams) (*InventoryBatch, error) {
	if p.FacilityID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_FACILITY", "Facility ID cannot be empty")
	}
	if p.MedicationID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_MEDICATION", "Medication ID cannot be empty")
	}
	if p.Quantity <= 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Received quantity must be positive")
	}
	if p.ReorderThreshold < 0 || p.MinLevel < 0 || p.MaxLevel < 0 {
		return nil, shared.NewDomainError("INVALID_LEVEL", "Stock levels cannot be negative")
	}
	if p.MaxLevel > 0 && p.MinLevel > p.MaxLevel {
		return nil, shared.NewDomainError("INVALID_LEVEL", "Minimum level cannot exceed maximum level")
	}
	if p.UnitCost.IsNegative() {
		return nil, shared.NewDomainError("INVALID_COST", "Unit cost cannot be negative")
	}

	base := shared.NewBaseEntity()
	receivedAt := p.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = base.CreatedAt
	}

	return &InventoryBatch{
		BaseEntity:       base,
		FacilityID:       p.FacilityID,
		MedicationID:     p.MedicationID,
		MedicationName:   p.MedicationName,
		LotNumber:        p.LotNumber,
		Quantity:         p.Quantity,
		MinLevel:         p.MinLevel,
		MaxLevel:         p.MaxLevel,
		ReorderThreshold: p.ReorderThreshold,
		UnitCost:         p.UnitCost,
		ReceivedAt:       receivedAt,
		ExpiryDate:       p.ExpiryDate,
		Status:           BatchStatusActive,
		Version:          1,
	}, nil
}

// IsAllocatable reports whether the Allocator may draw from this batch
func (b *InventoryBatch) IsAllocatable() bool {
	return b.Status == BatchStatusActive && b.Quantity > 0
}

// IsExpiredAt returns true if the batch expiry date is before t
func (b *InventoryBatch) IsExpiredAt(t time.Time) bool {
	if b.ExpiryDate == nil {
		return false
	}
	return b.ExpiryDate.Before(t)
}

// IsLowStock returns true if quantity is at or below the reorder threshold
func (b *InventoryBatch) IsLowStock() bool {
	return b.Quantity <= b.ReorderThreshold
}

// Deplete removes amount from the batch and returns the before/after pair.
// The batch must be Active and hold at least amount units.
func (b *InventoryBatch) Deplete(amount int64) (before, after int64, err error) {
	if amount <= 0 {
		return 0, 0, shared.ErrInvalidQuantity
	}
	if b.Status != BatchStatusActive {
		return 0, 0, shared.NewDomainError("BATCH_NOT_ACTIVE",
			fmt.Sprintf("Batch %s is %s", b.ID, b.Status))
	}
	if amount > b.Quantity {
		return 0, 0, shared.NewDomainError("INSUFFICIENT_STOCK",
			fmt.Sprintf("Batch %s holds %d, cannot deplete %d", b.ID, b.Quantity, amount))
	}

	before = b.Quantity
	b.Quantity -= amount
	if b.Quantity == 0 {
		b.Status = BatchStatusDepleted
	}
	b.Version++
	b.Touch()
	return before, b.Quantity, nil
}

// Replenish adds stock to the batch. A Depleted batch becomes Active again;
// a Disposed batch cannot be replenished. The alert flag is cleared once the
// quantity rises back above the reorder threshold.
func (b *InventoryBatch) Replenish(amount int64) (before, after int64, err error) {
	if amount <= 0 {
		return 0, 0, shared.ErrInvalidQuantity
	}
	if b.Status == BatchStatusDisposed {
		return 0, 0, shared.NewDomainError("BATCH_DISPOSED", "Cannot restock a disposed batch")
	}

	before = b.Quantity
	b.Quantity += amount
	b.Status = BatchStatusActive
	if b.Quantity > b.ReorderThreshold {
		b.AlertSent = false
	}
	b.Version++
	b.Touch()
	return before, b.Quantity, nil
}

// ZeroOut sets the quantity to zero through a manual adjustment
func (b *InventoryBatch) ZeroOut() (before int64, err error) {
	if b.Status == BatchStatusDisposed {
		return 0, shared.NewDomainError("BATCH_DISPOSED", "Cannot adjust a disposed batch")
	}
	before = b.Quantity
	b.Quantity = 0
	b.Status = BatchStatusDepleted
	b.Version++
	b.Touch()
	return before, nil
}

// Dispose writes off whatever is left and moves the batch to Disposed
func (b *InventoryBatch) Dispose() (before int64, err error) {
	if b.Status == BatchStatusDisposed {
		return 0, shared.NewDomainError("BATCH_DISPOSED", "Batch is already disposed")
	}
	before = b.Quantity
	b.Quantity = 0
	b.Status = BatchStatusDisposed
	b.Version++
	b.Touch()
	return before, nil
}

// MarkAlertSent records that a low-stock alert was raised for this batch
func (b *InventoryBatch) MarkAlertSent() {
	b.AlertSent = true
	b.Touch()
}

// GetTotalValue returns the value of the stock left in this batch
func (b *InventoryBatch) GetTotalValue() decimal.Decimal {
	return b.UnitCost.Mul(decimal.NewFromInt(b.Quantity))
}

// CrossedReorderThreshold reports whether a move from before to after took
// the quantity from above threshold to at or below it.
func CrossedReorderThreshold(before, after, threshold int64) bool {
	return before > threshold && after <= threshold
}

// RoseAboveReorderThreshold is the symmetric check used to reset alert flags
func RoseAboveReorderThreshold(before, after, threshold int64) bool {
	return before <= threshold && after > threshold
}

// NeedsReorderAlert reports whether after units is at or below threshold
func NeedsReorderAlert(after, threshold int64) bool {
	return after <= threshold
}

// ReorderAlertDue decides whether a move from before to after raises a
// below-threshold event. Crossing the threshold always does. A batch that was
// already low raises one only until an alert has been recorded for it; the
// flag clears once stock rises above threshold. The dispatcher's window
// dedups whatever passes this gate.
func ReorderAlertDue(before, after, threshold int64, alertSent bool) bool {
	if !NeedsReorderAlert(after, threshold) {
		return false
	}
	return CrossedReorderThreshold(before, after, threshold) || !alertSent
}
