package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/medrx/backend/internal/domain/fulfillment"
	"github.com/medrx/backend/internal/domain/shared"
)

// FulfillmentRequestModel is the persistence model for the Request aggregate
type FulfillmentRequestModel struct {
	VersionedRecord
	PatientID       uuid.UUID                  `gorm:"type:uuid;not null;index"`
	FacilityID      uuid.UUID                  `gorm:"type:uuid;not null;index"`
	Status          string                     `gorm:"type:varchar(20);not null;default:'PENDING';index"`
	RejectionReason string                     `gorm:"type:text;not null;default:''"`
	ApprovedBy      *uuid.UUID                 `gorm:"type:uuid"`
	ProcessedAt     *time.Time
	Transient       bool                       `gorm:"not null;default:false"`
	TransientCount  int                        `gorm:"column:transient_rejections;not null;default:0"`
	Items           []FulfillmentLineItemModel `gorm:"foreignKey:RequestID;references:ID"`
}

// TableName returns the table name for GORM
func (FulfillmentRequestModel) TableName() string {
	return "fulfillment_requests"
}

// FulfillmentLineItemModel is one line item of a request
type FulfillmentLineItemModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key"`
	RequestID    uuid.UUID `gorm:"type:uuid;not null;index"`
	Position     int       `gorm:"not null"`
	MedicationID uuid.UUID `gorm:"type:uuid;not null"`
	Quantity     int64     `gorm:"not null;check:quantity > 0"`
}

// TableName returns the table name for GORM
func (FulfillmentLineItemModel) TableName() string {
	return "fulfillment_request_items"
}

// ToDomain converts the persistence model to a domain Request.
// Items must be loaded ordered by position.
func (m *FulfillmentRequestModel) ToDomain() *fulfillment.Request {
	items := make([]fulfillment.LineItem, len(m.Items))
	for i, it := range m.Items {
		items[i] = fulfillment.LineItem{MedicationID: it.MedicationID, Quantity: it.Quantity}
	}
	r := &fulfillment.Request{
		BaseAggregateRoot:   m.aggregate(),
		PatientID:           m.PatientID,
		FacilityID:          m.FacilityID,
		LineItems:           items,
		Status:              fulfillment.RequestStatus(m.Status),
		RejectionReason:     m.RejectionReason,
		ProcessedAt:         m.ProcessedAt,
		Transient:           m.Transient,
		TransientRejections: m.TransientCount,
	}
	if m.ApprovedBy != nil {
		r.ApprovedBy = *m.ApprovedBy
	}
	return r
}

// FulfillmentRequestModelFromDomain creates a new persistence model from a domain Request
func FulfillmentRequestModelFromDomain(r *fulfillment.Request) *FulfillmentRequestModel {
	m := &FulfillmentRequestModel{
		VersionedRecord: versionedOf(r.BaseAggregateRoot),
		PatientID:       r.PatientID,
		FacilityID:      r.FacilityID,
		Status:          string(r.Status),
		RejectionReason: r.RejectionReason,
		ProcessedAt:     r.ProcessedAt,
		Transient:       r.Transient,
		TransientCount:  r.TransientRejections,
	}
	if r.ApprovedBy != uuid.Nil {
		approver := r.ApprovedBy
		m.ApprovedBy = &approver
	}
	m.Items = make([]FulfillmentLineItemModel, len(r.LineItems))
	for i, it := range r.LineItems {
		m.Items[i] = FulfillmentLineItemModel{
			ID:           shared.NewID(),
			RequestID:    r.ID,
			Position:     i,
			MedicationID: it.MedicationID,
			Quantity:     it.Quantity,
		}
	}
	return m
}
