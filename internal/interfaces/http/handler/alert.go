package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	alertapp "github.com/medrx/backend/internal/application/alert"
	"github.com/medrx/backend/internal/domain/alert"
	"github.com/medrx/backend/internal/domain/shared"
	"github.com/medrx/backend/internal/interfaces/http/dto"
)

// AlertHandler serves recent low-stock alerts
type AlertHandler struct {
	BaseHandler
	dispatcher *alertapp.Dispatcher
}

// NewAlertHandler creates a new AlertHandler
func NewAlertHandler(dispatcher *alertapp.Dispatcher) *AlertHandler {
	return &AlertHandler{dispatcher: dispatcher}
}

// AlertListQuery filters the alert list. Since defaults to the start of
// the dedup window.
type AlertListQuery struct {
	Since        *time.Time `form:"since" time_format:"2006-01-02T15:04:05Z07:00"`
	FacilityID   string     `form:"facility_id" binding:"omitempty,uuid"`
	MedicationID string     `form:"medication_id" binding:"omitempty,uuid"`
	Audience     string     `form:"audience" binding:"omitempty,oneof=admin inventory_staff pharmacy_staff broadcast"`
	dto.ListRequest
}

// AlertResponse is the API view of a low-stock alert record
type AlertResponse struct {
	ID               uuid.UUID `json:"id"`
	Title            string    `json:"title"`
	Message          string    `json:"message"`
	Audience         string    `json:"audience"`
	FacilityID       uuid.UUID `json:"facility_id"`
	MedicationID     uuid.UUID `json:"medication_id"`
	BatchID          uuid.UUID `json:"batch_id"`
	Quantity         int64     `json:"quantity"`
	ReorderThreshold int64     `json:"reorder_threshold"`
	CreatedAt        time.Time `json:"created_at"`
}

func toAlertResponses(alerts []alert.LowStockAlert) []AlertResponse {
	out := make([]AlertResponse, len(alerts))
	for i, a := range alerts {
		out[i] = AlertResponse{
			ID:               a.ID,
			Title:            a.Title,
			Message:          a.Message,
			Audience:         a.Audience.String(),
			FacilityID:       a.FacilityID,
			MedicationID:     a.MedicationID,
			BatchID:          a.BatchID,
			Quantity:         a.Quantity,
			ReorderThreshold: a.ReorderThreshold,
			CreatedAt:        a.CreatedAt,
		}
	}
	return out
}

// RegisterRoutes registers the alert routes
func (h *AlertHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/alerts", h.List)
}

// List returns alerts created since the given time, newest first
func (h *AlertHandler) List(c *gin.Context) {
	var q AlertListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.ValidationError(c, err)
		return
	}

	page := q.Normalize()
	filter := shared.DefaultFilter()
	filter.Page = page.Page
	filter.PageSize = page.PageSize
	if id := optionalUUID(q.FacilityID); id != nil {
		filter.Filters["facility_id"] = *id
	}
	if id := optionalUUID(q.MedicationID); id != nil {
		filter.Filters["medication_id"] = *id
	}
	if q.Audience != "" {
		filter.Filters["audience"] = q.Audience
	}

	var since time.Time
	if q.Since != nil {
		since = *q.Since
	}
	alerts, total, err := h.dispatcher.Recent(c.Request.Context(), since, filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Page(c, toAlertResponses(alerts), total, page)
}
