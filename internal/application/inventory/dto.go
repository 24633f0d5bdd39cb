package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/medrx/backend/internal/domain/inventory"
	"github.com/shopspring/decimal"
)

// BatchResponse represents a batch in API responses
type BatchResponse struct {
	ID               uuid.UUID       `json:"id"`
	FacilityID       uuid.UUID       `json:"facility_id"`
	MedicationID     uuid.UUID       `json:"medication_id"`
	MedicationName   string          `json:"medication_name"`
	LotNumber        string          `json:"lot_number,omitempty"`
	Quantity         int64           `json:"quantity"`
	MinLevel         int64           `json:"min_level"`
	MaxLevel         int64           `json:"max_level"`
	ReorderThreshold int64           `json:"reorder_threshold"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	TotalValue       decimal.Decimal `json:"total_value"`
	ReceivedAt       time.Time       `json:"received_at"`
	ExpiryDate       *time.Time      `json:"expiry_date,omitempty"`
	Status           string          `json:"status"`
	IsLowStock       bool            `json:"is_low_stock"`
	AlertSent        bool            `json:"alert_sent"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	Version          int             `json:"version"`
}

// ToBatchResponse converts a domain batch
func ToBatchResponse(b *inventory.InventoryBatch) BatchResponse {
	return BatchResponse{
		ID:               b.ID,
		FacilityID:       b.FacilityID,
		MedicationID:     b.MedicationID,
		MedicationName:   b.MedicationName,
		LotNumber:        b.LotNumber,
		Quantity:         b.Quantity,
		MinLevel:         b.MinLevel,
		MaxLevel:         b.MaxLevel,
		ReorderThreshold: b.ReorderThreshold,
		UnitCost:         b.UnitCost,
		TotalValue:       b.GetTotalValue(),
		ReceivedAt:       b.ReceivedAt,
		ExpiryDate:       b.ExpiryDate,
		Status:           b.Status.String(),
		IsLowStock:       b.IsLowStock(),
		AlertSent:        b.AlertSent,
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
		Version:          b.Version,
	}
}

// ToBatchResponses converts a slice of domain batches
func ToBatchResponses(batches []inventory.InventoryBatch) []BatchResponse {
	out := make([]BatchResponse, len(batches))
	for i := range batches {
		out[i] = ToBatchResponse(&batches[i])
	}
	return out
}

// LedgerEntryResponse represents one ledger entry in API responses
type LedgerEntryResponse struct {
	ID             uuid.UUID       `json:"id"`
	BatchID        uuid.UUID       `json:"batch_id"`
	MedicationID   uuid.UUID       `json:"medication_id"`
	FacilityID     uuid.UUID       `json:"facility_id"`
	Direction      string          `json:"direction"`
	Reason         string          `json:"reason"`
	QuantityMoved  int64           `json:"quantity_moved"`
	QuantityBefore int64           `json:"quantity_before"`
	QuantityAfter  int64           `json:"quantity_after"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	Value          decimal.Decimal `json:"value"`
	Reference      string          `json:"reference,omitempty"`
	ActorID        uuid.UUID       `json:"actor_id"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ToLedgerEntryResponses converts ledger entries
func ToLedgerEntryResponses(entries []inventory.LedgerEntry) []LedgerEntryResponse {
	out := make([]LedgerEntryResponse, len(entries))
	for i := range entries {
		e := &entries[i]
		out[i] = LedgerEntryResponse{
			ID:             e.ID,
			BatchID:        e.BatchID,
			MedicationID:   e.MedicationID,
			FacilityID:     e.FacilityID,
			Direction:      e.Direction.String(),
			Reason:         e.Reason.String(),
			QuantityMoved:  e.QuantityMoved,
			QuantityBefore: e.QuantityBefore,
			QuantityAfter:  e.QuantityAfter,
			UnitCost:       e.UnitCost,
			Value:          e.Value(),
			Reference:      e.Reference,
			ActorID:        e.ActorID,
			CreatedAt:      e.CreatedAt,
		}
	}
	return out
}

// ReceiveBatchRequest is a stock receipt creating a new batch
type ReceiveBatchRequest struct {
	FacilityID       uuid.UUID       `json:"facility_id" binding:"required"`
	MedicationID     uuid.UUID       `json:"medication_id" binding:"required"`
	MedicationName   string          `json:"medication_name" binding:"required,notblank,max=200"`
	LotNumber        string          `json:"lot_number" binding:"max=100"`
	Quantity         int64           `json:"quantity" binding:"required,gt=0"`
	MinLevel         int64           `json:"min_level" binding:"min=0"`
	MaxLevel         int64           `json:"max_level" binding:"min=0"`
	ReorderThreshold int64           `json:"reorder_threshold" binding:"min=0"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	ReceivedAt       *time.Time      `json:"received_at"`
	ExpiryDate       *time.Time      `json:"expiry_date"`
	Reference        string          `json:"reference" binding:"max=100"`
}

// RestockRequest adds units to an existing batch
type RestockRequest struct {
	Quantity  int64  `json:"quantity" binding:"required,gt=0"`
	Reference string `json:"reference" binding:"max=100"`
}

// AdjustmentRequest carries the audit reference of a manual zero or disposal
type AdjustmentRequest struct {
	Reference string `json:"reference" binding:"max=100"`
}

// BatchListFilter represents filter options for batch list
type BatchListFilter struct {
	MedicationID *uuid.UUID
	FacilityID   *uuid.UUID
	Status       string
	Page         int
	PageSize     int
}

// LedgerListFilter represents pagination for a batch's ledger
type LedgerListFilter struct {
	Page     int `form:"page" binding:"omitempty,min=1"`
	PageSize int `form:"page_size" binding:"omitempty,min=1,max=200"`
}
