package inventory

import (
	"github.com/google/uuid"
	"github.com/medrx/backend/internal/domain/shared"
)

// Aggregate type constant
const AggregateTypeInventoryBatch = "InventoryBatch"

// Event type constants
const (
	EventTypeStockBelowThreshold = "inventory.stock.below_threshold"
	EventTypeBatchReceived       = "inventory.batch.received"
)

// StockBelowThresholdEvent is published after commit when ReorderAlertDue
// holds for a stock move
type StockBelowThresholdEvent struct {
	shared.BaseDomainEvent
	BatchID          uuid.UUID `json:"batch_id"`
	FacilityID       uuid.UUID `json:"facility_id"`
	MedicationID     uuid.UUID `json:"medication_id"`
	MedicationName   string    `json:"medication_name"`
	QuantityBefore   int64     `json:"quantity_before"`
	Quantity         int64     `json:"quantity"`
	ReorderThreshold int64     `json:"reorder_threshold"`
	AlertSent        bool      `json:"alert_sent"`
}

// NewStockBelowThresholdEvent creates a new StockBelowThresholdEvent
func NewStockBelowThresholdEvent(batch *InventoryBatch, before int64) *StockBelowThresholdEvent {
	return &StockBelowThresholdEvent{
		BaseDomainEvent:  shared.NewBaseDomainEvent(EventTypeStockBelowThreshold, AggregateTypeInventoryBatch, batch.ID),
		BatchID:          batch.ID,
		FacilityID:       batch.FacilityID,
		MedicationID:     batch.MedicationID,
		MedicationName:   batch.MedicationName,
		QuantityBefore:   before,
		Quantity:         batch.Quantity,
		ReorderThreshold: batch.ReorderThreshold,
		AlertSent:        batch.AlertSent,
	}
}

// Crossed reports whether this event is the first move to or below threshold
func (e *StockBelowThresholdEvent) Crossed() bool {
	return CrossedReorderThreshold(e.QuantityBefore, e.Quantity, e.ReorderThreshold)
}

// BatchReceivedEvent is published after a new batch is received
type BatchReceivedEvent struct {
	shared.BaseDomainEvent
	BatchID      uuid.UUID `json:"batch_id"`
	FacilityID   uuid.UUID `json:"facility_id"`
	MedicationID uuid.UUID `json:"medication_id"`
	Quantity     int64     `json:"quantity"`
}

// NewBatchReceivedEvent creates a new BatchReceivedEvent
func NewBatchReceivedEvent(batch *InventoryBatch) *BatchReceivedEvent {
	return &BatchReceivedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBatchReceived, AggregateTypeInventoryBatch, batch.ID),
		BatchID:         batch.ID,
		FacilityID:      batch.FacilityID,
		MedicationID:    batch.MedicationID,
		Quantity:        batch.Quantity,
	}
}
