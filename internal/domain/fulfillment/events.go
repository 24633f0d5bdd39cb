package fulfillment

import (
	"github.com/google/uuid"
	"github.com/medrx/backend/internal/domain/shared"
)

// Aggregate type constant
const AggregateTypeRequest = "FulfillmentRequest"

// Event type constants
const (
	EventTypeRequestApproved  = "fulfillment.request.approved"
	EventTypeRequestFulfilled = "fulfillment.request.fulfilled"
	EventTypeRequestRejected  = "fulfillment.request.rejected"
)

// RequestApprovedEvent is the inbound approval that starts a fulfillment
type RequestApprovedEvent struct {
	shared.BaseDomainEvent
	RequestID  uuid.UUID  `json:"request_id"`
	PatientID  uuid.UUID  `json:"patient_id"`
	FacilityID uuid.UUID  `json:"facility_id"`
	ApproverID uuid.UUID  `json:"approver_id"`
	LineItems  []LineItem `json:"line_items"`
}

// NewRequestApprovedEvent creates a new RequestApprovedEvent
func NewRequestApprovedEvent(requestID, patientID, facilityID, approverID uuid.UUID, items []LineItem) *RequestApprovedEvent {
	return &RequestApprovedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeRequestApproved, AggregateTypeRequest, requestID),
		RequestID:       requestID,
		PatientID:       patientID,
		FacilityID:      facilityID,
		ApproverID:      approverID,
		LineItems:       items,
	}
}

// RequestFulfilledEvent is published after a fulfillment commits
type RequestFulfilledEvent struct {
	shared.BaseDomainEvent
	RequestID  uuid.UUID           `json:"request_id"`
	PatientID  uuid.UUID           `json:"patient_id"`
	FacilityID uuid.UUID           `json:"facility_id"`
	ApproverID uuid.UUID           `json:"approver_id"`
	Allocated  map[uuid.UUID]int64 `json:"allocated"`
}

// NewRequestFulfilledEvent creates a new RequestFulfilledEvent
func NewRequestFulfilledEvent(r *Request, allocated map[uuid.UUID]int64) *RequestFulfilledEvent {
	return &RequestFulfilledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeRequestFulfilled, AggregateTypeRequest, r.ID),
		RequestID:       r.ID,
		PatientID:       r.PatientID,
		FacilityID:      r.FacilityID,
		ApproverID:      r.ApprovedBy,
		Allocated:       allocated,
	}
}

// RequestRejectedEvent is published after a request is rejected
type RequestRejectedEvent struct {
	shared.BaseDomainEvent
	RequestID  uuid.UUID  `json:"request_id"`
	PatientID  uuid.UUID  `json:"patient_id"`
	FacilityID uuid.UUID  `json:"facility_id"`
	Reason     string     `json:"reason"`
	Shortages  []Shortage `json:"shortages,omitempty"`
	Transient  bool       `json:"transient"`
}

// NewRequestRejectedEvent creates a new RequestRejectedEvent
func NewRequestRejectedEvent(r *Request, shortages []Shortage, transient bool) *RequestRejectedEvent {
	return &RequestRejectedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeRequestRejected, AggregateTypeRequest, r.ID),
		RequestID:       r.ID,
		PatientID:       r.PatientID,
		FacilityID:      r.FacilityID,
		Reason:          r.RejectionReason,
		Shortages:       shortages,
		Transient:       transient,
	}
}
