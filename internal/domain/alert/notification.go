package alert

import "context"

// Notification is one message handed to the delivery layer
type Notification struct {
	// Target is a role name or "patient:<id>"
	Target    string
	Title     string
	Message   string
	ActionRef string
}

// NotificationSink delivers notifications. Delivery mechanics are external.
type NotificationSink interface {
	Send(ctx context.Context, n Notification) error
}

// PatientTarget addresses a notification to a patient
func PatientTarget(patientID string) string {
	return "patient:" + patientID
}
