package fulfillment

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/medrx/backend/internal/domain/shared"
)

// RequestStatus is the lifecycle state of a fulfillment request
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "PENDING"
	RequestStatusFulfilled RequestStatus = "FULFILLED"
	RequestStatusRejected  RequestStatus = "REJECTED"
)

// IsTerminal returns true once the request can no longer change
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusFulfilled || s == RequestStatusRejected
}

// String returns the string representation
func (s RequestStatus) String() string {
	return string(s)
}

// LineItem is one (medication, quantity) pair of a request
type LineItem struct {
	MedicationID uuid.UUID `json:"medication_id"`
	Quantity     int64     `json:"quantity"`
}

// Shortage reports one line item the stock pool could not cover
type Shortage struct {
	MedicationID   uuid.UUID `json:"medication_id"`
	MedicationName string    `json:"medication_name,omitempty"`
	Required       int64     `json:"required"`
	Available      int64     `json:"available"`
}

// Label names the medication for humans, falling back to its ID
func (s Shortage) Label() string {
	if s.MedicationName != "" {
		return s.MedicationName
	}
	return s.MedicationID.String()
}

// Request is a patient-facing request for one or more medications.
// Fulfilled and Rejected are terminal, except that a transient rejection
// can be reopened a bounded number of times.
type Request struct {
	shared.BaseAggregateRoot
	PatientID       uuid.UUID
	FacilityID      uuid.UUID
	LineItems       []LineItem
	Status          RequestStatus
	RejectionReason string
	ApprovedBy      uuid.UUID
	ProcessedAt     *time.Time
	// Transient is set while the last rejection was caused by contention
	Transient bool
	// TransientRejections counts contention rejections over the request's life
	TransientRejections int
}

// NewRequest creates a Pending request. When id is uuid.Nil a new one is generated.
func NewRequest(id, patientID, facilityID uuid.UUID, items []LineItem) (*Request, error) {
	if len(items) == 0 {
		return nil, shared.NewDomainError("EMPTY_REQUEST", "Request must contain at least one line item")
	}
	for i, item := range items {
		if item.MedicationID == uuid.Nil {
			return nil, shared.NewDomainError("INVALID_MEDICATION",
				fmt.Sprintf("Line item %d has no medication", i+1))
		}
		if item.Quantity <= 0 {
			return nil, shared.NewDomainError("INVALID_QUANTITY",
				fmt.Sprintf("Line item %d quantity must be positive", i+1))
		}
	}

	root := shared.NewBaseAggregateRoot()
	if id != uuid.Nil {
		root.ID = id
	}

	lines := make([]LineItem, len(items))
	copy(lines, items)

	return &Request{
		BaseAggregateRoot: root,
		PatientID:         patientID,
		FacilityID:        facilityID,
		LineItems:         lines,
		Status:            RequestStatusPending,
	}, nil
}

// TotalQuantity sums the required quantities across line items
func (r *Request) TotalQuantity() int64 {
	var total int64
	for _, item := range r.LineItems {
		total += item.Quantity
	}
	return total
}

// MarkFulfilled moves a pending request to Fulfilled
func (r *Request) MarkFulfilled(approver uuid.UUID, allocated map[uuid.UUID]int64) error {
	if r.Status.IsTerminal() {
		return shared.ErrRequestAlreadyProcessed
	}
	now := time.Now()
	r.Status = RequestStatusFulfilled
	r.ApprovedBy = approver
	r.ProcessedAt = &now
	r.RejectionReason = ""
	r.Transient = false
	r.IncrementVersion()
	r.Touch()
	r.AddDomainEvent(NewRequestFulfilledEvent(r, allocated))
	return nil
}

// MarkRejected moves a pending request to Rejected with reason
func (r *Request) MarkRejected(approver uuid.UUID, reason string, shortages []Shortage, transient bool) error {
	if r.Status.IsTerminal() {
		return shared.ErrRequestAlreadyProcessed
	}
	if strings.TrimSpace(reason) == "" {
		return shared.NewDomainError("INVALID_REASON", "Rejection reason cannot be empty")
	}
	now := time.Now()
	r.Status = RequestStatusRejected
	r.ApprovedBy = approver
	r.ProcessedAt = &now
	r.RejectionReason = reason
	r.Transient = transient
	if transient {
		r.TransientRejections++
	}
	r.IncrementVersion()
	r.Touch()
	r.AddDomainEvent(NewRequestRejectedEvent(r, shortages, transient))
	return nil
}

// CanReopen reports whether a transiently rejected request may be admitted
// again when at most maxRetries re-admissions are allowed
func (r *Request) CanReopen(maxRetries int) bool {
	return r.Status == RequestStatusRejected && r.Transient && r.TransientRejections <= maxRetries
}

// Reopen moves a transiently rejected request back to Pending. The
// rejection count is kept so the budget spans every attempt.
func (r *Request) Reopen(maxRetries int) error {
	if !r.CanReopen(maxRetries) {
		return shared.ErrRequestAlreadyProcessed
	}
	r.Status = RequestStatusPending
	r.RejectionReason = ""
	r.ProcessedAt = nil
	r.Transient = false
	r.IncrementVersion()
	r.Touch()
	return nil
}

// ShortageReason formats the per-medication required vs available breakdown
func ShortageReason(shortages []Shortage) string {
	parts := make([]string, 0, len(shortages))
	for _, s := range shortages {
		parts = append(parts, fmt.Sprintf("%s required=%d available=%d", s.Label(), s.Required, s.Available))
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}
