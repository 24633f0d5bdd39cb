package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	fulfillmentapp "github.com/medrx/backend/internal/application/fulfillment"
	"github.com/medrx/backend/internal/domain/fulfillment"
	"github.com/medrx/backend/internal/domain/shared"
	"github.com/medrx/backend/internal/interfaces/http/dto"
	"github.com/medrx/backend/internal/interfaces/http/middleware"
)

// FulfillmentHandler serves approval commands and request lookups
type FulfillmentHandler struct {
	BaseHandler
	manager   *fulfillmentapp.Manager
	publisher shared.EventPublisher
}

// NewFulfillmentHandler creates a new FulfillmentHandler
func NewFulfillmentHandler(manager *fulfillmentapp.Manager) *FulfillmentHandler {
	return &FulfillmentHandler{manager: manager}
}

// WithPublisher enables the asynchronous approval route, which hands the
// approval to the event bus instead of running it in the request.
func (h *FulfillmentHandler) WithPublisher(publisher shared.EventPublisher) *FulfillmentHandler {
	h.publisher = publisher
	return h
}

// ApprovalAccepted is the 202 body of an asynchronous approval
type ApprovalAccepted struct {
	RequestID uuid.UUID `json:"request_id"`
	EventID   string    `json:"event_id"`
}

// FulfillRequest is the body of an approval. RequestID is optional; an
// approval without one creates the request.
type FulfillRequest struct {
	RequestID  *uuid.UUID             `json:"request_id"`
	PatientID  uuid.UUID              `json:"patient_id" binding:"required"`
	FacilityID uuid.UUID              `json:"facility_id" binding:"required"`
	LineItems  []fulfillment.LineItem `json:"line_items" binding:"required,min=1"`
}

// RegisterRoutes registers the fulfillment routes
func (h *FulfillmentHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/fulfillments")
	g.POST("", h.Fulfill)
	if h.publisher != nil {
		g.POST("/approvals", h.Approve)
	}
	g.GET("/:id", h.GetByID)
}

// Fulfill approves a request and runs it to a terminal state.
// A Fulfilled outcome answers 200; a Rejected one answers 409 with the
// outcome in the body, plus Retry-After while a transient rejection may
// still be resubmitted under the same request_id.
func (h *FulfillmentHandler) Fulfill(c *gin.Context) {
	actorID, ok := h.requireActor(c)
	if !ok {
		return
	}

	var req FulfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	cmd := fulfillmentapp.Command{
		PatientID:  req.PatientID,
		FacilityID: req.FacilityID,
		ActorID:    actorID,
		LineItems:  req.LineItems,
	}
	if req.RequestID != nil {
		cmd.RequestID = *req.RequestID
	}

	outcome, err := h.manager.Fulfill(c.Request.Context(), cmd)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	if outcome.Fulfilled() {
		h.Success(c, outcome)
		return
	}
	if outcome.Retryable {
		c.Header("Retry-After", retryAfterSeconds(1))
	}
	c.JSON(http.StatusConflict, dto.Rejected(
		dto.ErrCodeRejected,
		outcome.Reason,
		middleware.GetRequestID(c),
		outcome,
	))
}

// Approve publishes the approval as an event and answers 202 with the
// request ID to poll.
func (h *FulfillmentHandler) Approve(c *gin.Context) {
	actorID, ok := h.requireActor(c)
	if !ok {
		return
	}

	var req FulfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	requestID := shared.NewID()
	if req.RequestID != nil {
		requestID = *req.RequestID
	}

	evt := fulfillment.NewRequestApprovedEvent(requestID, req.PatientID, req.FacilityID, actorID, req.LineItems)
	if err := h.publisher.Publish(c.Request.Context(), evt); err != nil {
		h.HandleDomainError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, dto.OK(ApprovalAccepted{
		RequestID: requestID,
		EventID:   evt.EventID().String(),
	}))
}

// GetByID returns a stored request with the ledger entries it produced
func (h *FulfillmentHandler) GetByID(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	view, err := h.manager.GetRequest(c.Request.Context(), id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, view)
}
