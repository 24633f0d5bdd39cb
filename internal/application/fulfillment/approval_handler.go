package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"github.com/medrx/backend/internal/domain/fulfillment"
	"github.com/medrx/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// ApprovalHandler runs the manager for each RequestApprovedEvent on the bus
type ApprovalHandler struct {
	manager *Manager
	logger  *zap.Logger
}

// NewApprovalHandler creates a new approval handler
func NewApprovalHandler(manager *Manager, logger *zap.Logger) *ApprovalHandler {
	return &ApprovalHandler{
		manager: manager,
		logger:  logger,
	}
}

// EventTypes returns the event types this handler is interested in
func (h *ApprovalHandler) EventTypes() []string {
	return []string{fulfillment.EventTypeRequestApproved}
}

// Handle processes a RequestApprovedEvent
func (h *ApprovalHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	e, ok := event.(*fulfillment.RequestApprovedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			fulfillment.EventTypeRequestApproved, event.EventType())
	}

	_, err := h.manager.Fulfill(ctx, Command{
		RequestID:  e.RequestID,
		PatientID:  e.PatientID,
		FacilityID: e.FacilityID,
		ActorID:    e.ApproverID,
		LineItems:  e.LineItems,
	})
	if errors.Is(err, shared.ErrRequestAlreadyProcessed) {
		h.logger.Info("duplicate approval ignored", zap.String("request_id", e.RequestID.String()))
		return nil
	}
	return err
}

var _ shared.EventHandler = (*ApprovalHandler)(nil)
