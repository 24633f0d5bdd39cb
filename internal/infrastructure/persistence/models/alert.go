package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/medrx/backend/internal/domain/alert"
)

// LowStockAlertModel is the persistence model for alert history.
// The unique index catches concurrent dispatchers racing inside one window.
type LowStockAlertModel struct {
	ID               uuid.UUID `gorm:"type:uuid;primary_key"`
	DedupKey         string    `gorm:"type:varchar(120);not null;uniqueIndex:uq_alert_window,priority:1;index:idx_alert_key_created,priority:1"`
	Audience         string    `gorm:"type:varchar(40);not null;uniqueIndex:uq_alert_window,priority:2"`
	WindowBucket     int64     `gorm:"not null;uniqueIndex:uq_alert_window,priority:3"`
	Title            string    `gorm:"type:varchar(300);not null"`
	Message          string    `gorm:"type:text;not null"`
	FacilityID       uuid.UUID `gorm:"type:uuid;not null;index"`
	MedicationID     uuid.UUID `gorm:"type:uuid;not null"`
	BatchID          uuid.UUID `gorm:"type:uuid;not null"`
	Quantity         int64     `gorm:"not null"`
	ReorderThreshold int64     `gorm:"not null"`
	CreatedAt        time.Time `gorm:"not null;index:idx_alert_key_created,priority:2"`
}

// TableName returns the table name for GORM
func (LowStockAlertModel) TableName() string {
	return "low_stock_alerts"
}

// ToDomain converts the persistence model to a domain LowStockAlert
func (m *LowStockAlertModel) ToDomain() alert.LowStockAlert {
	return alert.LowStockAlert{
		ID:               m.ID,
		DedupKey:         m.DedupKey,
		Title:            m.Title,
		Message:          m.Message,
		Audience:         alert.Audience(m.Audience),
		FacilityID:       m.FacilityID,
		MedicationID:     m.MedicationID,
		BatchID:          m.BatchID,
		Quantity:         m.Quantity,
		ReorderThreshold: m.ReorderThreshold,
		WindowBucket:     m.WindowBucket,
		CreatedAt:        m.CreatedAt,
	}
}

// LowStockAlertModelFromDomain creates a new persistence model from a domain LowStockAlert
func LowStockAlertModelFromDomain(a *alert.LowStockAlert) *LowStockAlertModel {
	return &LowStockAlertModel{
		ID:               a.ID,
		DedupKey:         a.DedupKey,
		Audience:         string(a.Audience),
		WindowBucket:     a.WindowBucket,
		Title:            a.Title,
		Message:          a.Message,
		FacilityID:       a.FacilityID,
		MedicationID:     a.MedicationID,
		BatchID:          a.BatchID,
		Quantity:         a.Quantity,
		ReorderThreshold: a.ReorderThreshold,
		CreatedAt:        a.CreatedAt,
	}
}

// AllModels returns every model managed by the schema, in dependency order
func AllModels() []interface{} {
	return []interface{}{
		&BatchModel{},
		&LedgerEntryModel{},
		&FulfillmentRequestModel{},
		&FulfillmentLineItemModel{},
		&LowStockAlertModel{},
	}
}
