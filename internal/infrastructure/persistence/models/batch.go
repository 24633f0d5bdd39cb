package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/medrx/backend/internal/domain/inventory"
	"github.com/shopspring/decimal"
)

// BatchModel is the persistence model for the InventoryBatch entity
type BatchModel struct {
	Record
	FacilityID       uuid.UUID       `gorm:"type:uuid;not null;index:idx_batches_med_fac,priority:2"`
	MedicationID     uuid.UUID       `gorm:"type:uuid;not null;index:idx_batches_med_fac,priority:1"`
	MedicationName   string          `gorm:"type:varchar(200);not null;default:''"`
	LotNumber        string          `gorm:"type:varchar(100);not null;default:''"`
	Quantity         int64           `gorm:"not null;check:quantity >= 0"`
	MinLevel         int64           `gorm:"not null;default:0"`
	MaxLevel         int64           `gorm:"not null;default:0"`
	ReorderThreshold int64           `gorm:"not null;default:0"`
	UnitCost         decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	ReceivedAt       time.Time       `gorm:"not null;index"`
	ExpiryDate       *time.Time      `gorm:"type:date"`
	Status           string          `gorm:"type:varchar(20);not null;default:'ACTIVE'"`
	AlertSent        bool            `gorm:"not null;default:false"`
	Version          int             `gorm:"not null;default:1"`
}

// TableName returns the table name for GORM
func (BatchModel) TableName() string {
	return "inventory_batches"
}

// ToDomain converts the persistence model to a domain InventoryBatch
func (m *BatchModel) ToDomain() *inventory.InventoryBatch {
	return &inventory.InventoryBatch{
		BaseEntity:       m.entity(),
		FacilityID:       m.FacilityID,
		MedicationID:     m.MedicationID,
		MedicationName:   m.MedicationName,
		LotNumber:        m.LotNumber,
		Quantity:         m.Quantity,
		MinLevel:         m.MinLevel,
		MaxLevel:         m.MaxLevel,
		ReorderThreshold: m.ReorderThreshold,
		UnitCost:         m.UnitCost,
		ReceivedAt:       m.ReceivedAt,
		ExpiryDate:       m.ExpiryDate,
		Status:           inventory.BatchStatus(m.Status),
		AlertSent:        m.AlertSent,
		Version:          m.Version,
	}
}

// FromDomain populates the persistence model from a domain InventoryBatch
func (m *BatchModel) FromDomain(b *inventory.InventoryBatch) {
	m.Record = recordOf(b.BaseEntity)
	m.FacilityID = b.FacilityID
	m.MedicationID = b.MedicationID
	m.MedicationName = b.MedicationName
	m.LotNumber = b.LotNumber
	m.Quantity = b.Quantity
	m.MinLevel = b.MinLevel
	m.MaxLevel = b.MaxLevel
	m.ReorderThreshold = b.ReorderThreshold
	m.UnitCost = b.UnitCost
	m.ReceivedAt = b.ReceivedAt
	m.ExpiryDate = b.ExpiryDate
	m.Status = string(b.Status)
	m.AlertSent = b.AlertSent
	m.Version = b.Version
}

// BatchModelFromDomain creates a new persistence model from a domain InventoryBatch
func BatchModelFromDomain(b *inventory.InventoryBatch) *BatchModel {
	m := &BatchModel{}
	m.FromDomain(b)
	return m
}

// LedgerEntryModel is the persistence model for one ledger entry.
// Rows are inserted only; the table has no update path.
type LedgerEntryModel struct {
	ID             uuid.UUID       `gorm:"type:uuid;primary_key"`
	BatchID        uuid.UUID       `gorm:"type:uuid;not null;index:idx_ledger_batch_created,priority:1"`
	MedicationID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	FacilityID     uuid.UUID       `gorm:"type:uuid;not null"`
	Direction      string          `gorm:"type:varchar(10);not null"`
	Reason         string          `gorm:"type:varchar(20);not null"`
	QuantityMoved  int64           `gorm:"not null"`
	QuantityBefore int64           `gorm:"not null"`
	QuantityAfter  int64           `gorm:"not null"`
	UnitCost       decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Reference      string          `gorm:"type:varchar(100);not null;default:'';index"`
	ActorID        uuid.UUID       `gorm:"type:uuid;not null"`
	CreatedAt      time.Time       `gorm:"not null;index:idx_ledger_batch_created,priority:2"`
}

// TableName returns the table name for GORM
func (LedgerEntryModel) TableName() string {
	return "inventory_ledger"
}

// ToDomain converts the persistence model to a domain LedgerEntry
func (m *LedgerEntryModel) ToDomain() inventory.LedgerEntry {
	return inventory.LedgerEntry{
		ID:             m.ID,
		BatchID:        m.BatchID,
		MedicationID:   m.MedicationID,
		FacilityID:     m.FacilityID,
		Direction:      inventory.Direction(m.Direction),
		Reason:         inventory.LedgerReason(m.Reason),
		QuantityMoved:  m.QuantityMoved,
		QuantityBefore: m.QuantityBefore,
		QuantityAfter:  m.QuantityAfter,
		UnitCost:       m.UnitCost,
		Reference:      m.Reference,
		ActorID:        m.ActorID,
		CreatedAt:      m.CreatedAt,
	}
}

// LedgerEntryModelFromDomain creates a new persistence model from a domain LedgerEntry
func LedgerEntryModelFromDomain(e *inventory.LedgerEntry) *LedgerEntryModel {
	return &LedgerEntryModel{
		ID:             e.ID,
		BatchID:        e.BatchID,
		MedicationID:   e.MedicationID,
		FacilityID:     e.FacilityID,
		Direction:      string(e.Direction),
		Reason:         string(e.Reason),
		QuantityMoved:  e.QuantityMoved,
		QuantityBefore: e.QuantityBefore,
		QuantityAfter:  e.QuantityAfter,
		UnitCost:       e.UnitCost,
		Reference:      e.Reference,
		ActorID:        e.ActorID,
		CreatedAt:      e.CreatedAt,
	}
}
