package fulfillment

import (
	"github.com/google/uuid"
	"github.com/medrx/backend/internal/domain/fulfillment"
	"github.com/medrx/backend/internal/domain/inventory"
)

// Command is one approval of a fulfillment request.
// ActorID is the approver and is stamped on every ledger entry.
type Command struct {
	RequestID  uuid.UUID
	PatientID  uuid.UUID
	FacilityID uuid.UUID
	ActorID    uuid.UUID
	LineItems  []fulfillment.LineItem
}

// LineResult is the committed allocation of one line item
type LineResult struct {
	MedicationID uuid.UUID              `json:"medication_id"`
	Required     int64                  `json:"required"`
	Allocations  []inventory.Allocation `json:"allocations"`
}

// Outcome is the terminal result of a fulfillment attempt: either Fulfilled
// with per-line detail or Rejected with a reason. Retryable is set when the
// same request ID may be submitted again.
type Outcome struct {
	RequestID uuid.UUID                 `json:"request_id"`
	Status    fulfillment.RequestStatus `json:"status"`
	Reason    string                    `json:"reason,omitempty"`
	Transient bool                      `json:"transient"`
	Retryable bool                      `json:"retryable"`
	Attempts  int                       `json:"attempts"`
	Lines     []LineResult              `json:"lines,omitempty"`
	Shortages []fulfillment.Shortage    `json:"shortages,omitempty"`
}

// Fulfilled reports whether the outcome is Fulfilled
func (o *Outcome) Fulfilled() bool {
	return o.Status == fulfillment.RequestStatusFulfilled
}

// RequestView is the read model of a stored request
type RequestView struct {
	ID              uuid.UUID                 `json:"id"`
	PatientID       uuid.UUID                 `json:"patient_id"`
	FacilityID      uuid.UUID                 `json:"facility_id"`
	LineItems       []fulfillment.LineItem    `json:"line_items"`
	Status          fulfillment.RequestStatus `json:"status"`
	RejectionReason string                    `json:"rejection_reason,omitempty"`
	Retries         int                       `json:"transient_rejections,omitempty"`
	ApprovedBy      uuid.UUID                 `json:"approved_by"`
	Ledger          []inventory.LedgerEntry   `json:"ledger,omitempty"`
}

// ToRequestView converts a domain request
func ToRequestView(r *fulfillment.Request, ledger []inventory.LedgerEntry) *RequestView {
	return &RequestView{
		ID:              r.ID,
		PatientID:       r.PatientID,
		FacilityID:      r.FacilityID,
		LineItems:       r.LineItems,
		Status:          r.Status,
		RejectionReason: r.RejectionReason,
		Retries:         r.TransientRejections,
		ApprovedBy:      r.ApprovedBy,
		Ledger:          ledger,
	}
}
