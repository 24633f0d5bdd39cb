package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	inventoryapp "github.com/medrx/backend/internal/application/inventory"
	"github.com/medrx/backend/internal/interfaces/http/dto"
)

// BatchHandler serves stock receipt, adjustments and ledger reads
type BatchHandler struct {
	BaseHandler
	service *inventoryapp.BatchService
}

// NewBatchHandler creates a new BatchHandler
func NewBatchHandler(service *inventoryapp.BatchService) *BatchHandler {
	return &BatchHandler{service: service}
}

// BatchListQuery is the query string of the batch list
type BatchListQuery struct {
	MedicationID string `form:"medication_id" binding:"omitempty,uuid"`
	FacilityID   string `form:"facility_id" binding:"omitempty,uuid"`
	Status       string `form:"status" binding:"omitempty,oneof=ACTIVE DEPLETED DISPOSED"`
	dto.ListRequest
}

// RegisterRoutes registers the batch routes
func (h *BatchHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/batches")
	g.POST("", h.Receive)
	g.GET("", h.List)
	g.GET("/:id", h.GetByID)
	g.POST("/:id/restock", h.Restock)
	g.POST("/:id/dispose", h.Dispose)
	g.POST("/:id/zero", h.Zero)
	g.GET("/:id/ledger", h.Ledger)
}

// Receive creates a batch from a stock receipt
func (h *BatchHandler) Receive(c *gin.Context) {
	actorID, ok := h.requireActor(c)
	if !ok {
		return
	}
	var req inventoryapp.ReceiveBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}
	batch, err := h.service.Receive(c.Request.Context(), actorID, req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Created(c, batch)
}

// List returns batches filtered by medication, facility and status
func (h *BatchHandler) List(c *gin.Context) {
	var q BatchListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.ValidationError(c, err)
		return
	}
	filter := inventoryapp.BatchListFilter{
		MedicationID: optionalUUID(q.MedicationID),
		FacilityID:   optionalUUID(q.FacilityID),
		Status:       q.Status,
		Page:         q.Page,
		PageSize:     q.PageSize,
	}
	batches, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Page(c, batches, total, q.ListRequest)
}

// GetByID returns one batch
func (h *BatchHandler) GetByID(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	batch, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, batch)
}

// Restock adds units to a batch
func (h *BatchHandler) Restock(c *gin.Context) {
	actorID, ok := h.requireActor(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req inventoryapp.RestockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}
	batch, err := h.service.Restock(c.Request.Context(), actorID, id, req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, batch)
}

// Dispose writes off the remaining units of a batch
func (h *BatchHandler) Dispose(c *gin.Context) {
	h.adjust(c, h.service.Dispose)
}

// Zero sets a batch to zero after a manual count
func (h *BatchHandler) Zero(c *gin.Context) {
	h.adjust(c, h.service.ManualZero)
}

type adjustFunc func(ctx context.Context, actorID, batchID uuid.UUID, req inventoryapp.AdjustmentRequest) (*inventoryapp.BatchResponse, error)

// adjust runs a manual zero or disposal; the body is optional
func (h *BatchHandler) adjust(c *gin.Context, fn adjustFunc) {
	actorID, ok := h.requireActor(c)
	if !ok {
		return
	}
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req inventoryapp.AdjustmentRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.ValidationError(c, err)
			return
		}
	}
	batch, err := fn(c.Request.Context(), actorID, id, req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, batch)
}

// Ledger returns a batch's ledger entries oldest first
func (h *BatchHandler) Ledger(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var filter inventoryapp.LedgerListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.ValidationError(c, err)
		return
	}
	entries, total, err := h.service.Ledger(c.Request.Context(), id, filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Page(c, entries, total, dto.ListRequest{Page: filter.Page, PageSize: filter.PageSize})
}
