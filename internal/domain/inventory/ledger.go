package inventory

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/medrx/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Direction is the sign of a ledger movement
type Direction string

const (
	DirectionInbound  Direction = "INBOUND"
	DirectionOutbound Direction = "OUTBOUND"
)

// String returns the string representation
func (d Direction) String() string {
	return string(d)
}

// LedgerReason classifies why a batch quantity changed
type LedgerReason string

const (
	ReasonFulfillment LedgerReason = "FULFILLMENT"
	ReasonReceipt     LedgerReason = "RECEIPT"
	ReasonRestock     LedgerReason = "RESTOCK"
	ReasonManualZero  LedgerReason = "MANUAL_ZERO"
	ReasonDisposal    LedgerReason = "DISPOSAL"
)

// String returns the string representation
func (r LedgerReason) String() string {
	return string(r)
}

// IsValid returns true if the reason is known
func (r LedgerReason) IsValid() bool {
	switch r {
	case ReasonFulfillment, ReasonReceipt, ReasonRestock, ReasonManualZero, ReasonDisposal:
		return true
	}
	return false
}

// LedgerEntry is an immutable record of one batch quantity change.
// QuantityAfter = QuantityBefore - QuantityMoved for outbound entries and
// QuantityBefore + QuantityMoved for inbound ones.
type LedgerEntry struct {
	ID             uuid.UUID
	BatchID        uuid.UUID
	MedicationID   uuid.UUID
	FacilityID     uuid.UUID
	Direction      Direction
	Reason         LedgerReason
	QuantityMoved  int64
	QuantityBefore int64
	QuantityAfter  int64
	UnitCost       decimal.Decimal
	Reference      string
	ActorID        uuid.UUID
	CreatedAt      time.Time
}

// NewOutboundEntry records stock leaving a batch
func NewOutboundEntry(batch *InventoryBatch, reason LedgerReason, moved, before, after int64, reference string, actorID uuid.UUID) (*LedgerEntry, error) {
	return newLedgerEntry(batch, DirectionOutbound, reason, moved, before, after, reference, actorID)
}

// NewInboundEntry records stock entering a batch
func NewInboundEntry(batch *InventoryBatch, reason LedgerReason, moved, before, after int64, reference string, actorID uuid.UUID) (*LedgerEntry, error) {
	return newLedgerEntry(batch, DirectionInbound, reason, moved, before, after, reference, actorID)
}

func newLedgerEntry(batch *InventoryBatch, dir Direction, reason LedgerReason, moved, before, after int64, reference string, actorID uuid.UUID) (*LedgerEntry, error) {
	if batch == nil {
		return nil, shared.NewDomainError("INVALID_BATCH", "Batch cannot be nil")
	}
	if !reason.IsValid() {
		return nil, shared.NewDomainError("INVALID_REASON", "Invalid ledger reason")
	}
	if moved < 0 || before < 0 || after < 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Ledger quantities cannot be negative")
	}

	entry := &LedgerEntry{
		ID:             shared.NewID(),
		BatchID:        batch.ID,
		MedicationID:   batch.MedicationID,
		FacilityID:     batch.FacilityID,
		Direction:      dir,
		Reason:         reason,
		QuantityMoved:  moved,
		QuantityBefore: before,
		QuantityAfter:  after,
		UnitCost:       batch.UnitCost,
		Reference:      reference,
		ActorID:        actorID,
		CreatedAt:      time.Now(),
	}
	if err := entry.Verify(); err != nil {
		return nil, err
	}
	return entry, nil
}

// Verify checks the before/moved/after arithmetic
func (e *LedgerEntry) Verify() error {
	var want int64
	switch e.Direction {
	case DirectionOutbound:
		want = e.QuantityBefore - e.QuantityMoved
	case DirectionInbound:
		want = e.QuantityBefore + e.QuantityMoved
	default:
		return shared.NewDomainError("INVALID_DIRECTION", "Invalid ledger direction")
	}
	if want != e.QuantityAfter {
		return shared.WrapDomainError(shared.ErrLedgerMismatch.Code, shared.ErrLedgerMismatch.Message,
			fmt.Errorf("batch %s: before=%d moved=%d after=%d", e.BatchID, e.QuantityBefore, e.QuantityMoved, e.QuantityAfter))
	}
	return nil
}

// VerifyAgainst checks that the entry's after quantity is what the batch
// actually holds. A mismatch means another writer changed the row between
// the read and the write.
func (e *LedgerEntry) VerifyAgainst(stored int64) error {
	if err := e.Verify(); err != nil {
		return err
	}
	if e.QuantityAfter != stored {
		return shared.WrapDomainError(shared.ErrLedgerMismatch.Code, shared.ErrLedgerMismatch.Message,
			fmt.Errorf("batch %s: ledger after=%d stored=%d", e.BatchID, e.QuantityAfter, stored))
	}
	return nil
}

// Value returns the cost value of the movement
func (e *LedgerEntry) Value() decimal.Decimal {
	return e.UnitCost.Mul(decimal.NewFromInt(e.QuantityMoved))
}
