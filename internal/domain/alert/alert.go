package alert

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/medrx/backend/internal/domain/shared"
)

// Audience is the role a notification record is addressed to
type Audience string

const (
	AudienceAdmin          Audience = "admin"
	AudienceInventoryStaff Audience = "inventory_staff"
	AudiencePharmacyStaff  Audience = "pharmacy_staff"
	AudienceBroadcast      Audience = "broadcast"
)

// String returns the string representation
func (a Audience) String() string {
	return string(a)
}

// LowStockAlert is one role-targeted low-stock record.
// No two alerts with the same DedupKey and Audience exist inside one window.
type LowStockAlert struct {
	ID               uuid.UUID
	DedupKey         string
	Title            string
	Message          string
	Audience         Audience
	FacilityID       uuid.UUID
	MedicationID     uuid.UUID
	BatchID          uuid.UUID
	Quantity         int64
	ReorderThreshold int64
	WindowBucket     int64
	CreatedAt        time.Time
}

// Trigger carries the batch state that caused an alert check
type Trigger struct {
	BatchID          uuid.UUID
	FacilityID       uuid.UUID
	MedicationID     uuid.UUID
	MedicationName   string
	Quantity         int64
	ReorderThreshold int64
}

// DedupKey returns the key low-stock alerts are deduplicated on
func DedupKey(medicationID, facilityID uuid.UUID) string {
	return fmt.Sprintf("lowstock:%s:%s", medicationID, facilityID)
}

// Title returns the display title for a medication
func Title(medicationName string) string {
	return "Low Stock Alert: " + medicationName
}

// WindowBucket returns the index of the fixed window containing t. It backs
// the unique index that catches concurrent inserts; the authoritative check
// is the rolling window query.
func WindowBucket(t time.Time, window time.Duration) int64 {
	if window <= 0 {
		return 0
	}
	return t.UnixNano() / int64(window)
}

// NewLowStockAlert builds the record for one audience
func NewLowStockAlert(tr Trigger, audience Audience, now time.Time, window time.Duration) (*LowStockAlert, error) {
	if tr.MedicationID == uuid.Nil || tr.FacilityID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TRIGGER", "Alert trigger needs medication and facility")
	}
	if audience == "" {
		return nil, shared.NewDomainError("INVALID_AUDIENCE", "Alert audience cannot be empty")
	}

	name := tr.MedicationName
	if name == "" {
		name = tr.MedicationID.String()
	}

	msg := fmt.Sprintf("%s is at %d units (reorder threshold %d) at facility %s",
		name, tr.Quantity, tr.ReorderThreshold, tr.FacilityID)

	return &LowStockAlert{
		ID:               shared.NewID(),
		DedupKey:         DedupKey(tr.MedicationID, tr.FacilityID),
		Title:            Title(name),
		Message:          msg,
		Audience:         audience,
		FacilityID:       tr.FacilityID,
		MedicationID:     tr.MedicationID,
		BatchID:          tr.BatchID,
		Quantity:         tr.Quantity,
		ReorderThreshold: tr.ReorderThreshold,
		WindowBucket:     WindowBucket(now, window),
		CreatedAt:        now,
	}, nil
}

// ActionRef is the reference handed to the notification sink
func (a *LowStockAlert) ActionRef() string {
	return "alert:" + a.ID.String()
}
