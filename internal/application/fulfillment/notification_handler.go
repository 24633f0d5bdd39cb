package fulfillment

import (
	"context"
	"fmt"

	"github.com/medrx/backend/internal/domain/alert"
	"github.com/medrx/backend/internal/domain/fulfillment"
	"github.com/medrx/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// NotificationHandler sends the patient pickup notice after a fulfillment
// commits and the staff shortage notice after a stock rejection. Delivery
// failures are logged and swallowed.
type NotificationHandler struct {
	sink          alert.NotificationSink
	staffAudience alert.Audience
	logger        *zap.Logger
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(sink alert.NotificationSink, staffAudience alert.Audience, logger *zap.Logger) *NotificationHandler {
	if staffAudience == "" {
		staffAudience = alert.AudiencePharmacyStaff
	}
	return &NotificationHandler{
		sink:          sink,
		staffAudience: staffAudience,
		logger:        logger,
	}
}

// EventTypes returns the event types this handler is interested in
func (h *NotificationHandler) EventTypes() []string {
	return []string{fulfillment.EventTypeRequestFulfilled, fulfillment.EventTypeRequestRejected}
}

// Handle processes fulfilled and rejected request events
func (h *NotificationHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	var n *alert.Notification
	switch e := event.(type) {
	case *fulfillment.RequestFulfilledEvent:
		n = &alert.Notification{
			Target:    alert.PatientTarget(e.PatientID.String()),
			Title:     "Your medication is ready for pickup",
			Message:   fmt.Sprintf("Request %s has been filled and is ready for pickup.", e.RequestID),
			ActionRef: "request:" + e.RequestID.String(),
		}
	case *fulfillment.RequestRejectedEvent:
		if len(e.Shortages) == 0 {
			return nil
		}
		n = &alert.Notification{
			Target:    h.staffAudience.String(),
			Title:     "Medication shortage",
			Message:   fmt.Sprintf("Request %s could not be filled: %s", e.RequestID, e.Reason),
			ActionRef: "request:" + e.RequestID.String(),
		}
	default:
		return fmt.Errorf("unexpected event type: %s", event.EventType())
	}

	if err := h.sink.Send(ctx, *n); err != nil {
		h.logger.Error("failed to send notification",
			zap.String("event_type", event.EventType()),
			zap.String("target", n.Target),
			zap.Error(err),
		)
	}
	return nil
}

var _ shared.EventHandler = (*NotificationHandler)(nil)
