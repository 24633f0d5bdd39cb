package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/medrx/backend/internal/domain/shared"
	"github.com/medrx/backend/internal/infrastructure/logger"
	"github.com/medrx/backend/internal/interfaces/http/dto"
	"github.com/medrx/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.OK(data))
}

// Page sends one page of a list
func (h *BaseHandler) Page(c *gin.Context, data any, total int64, page dto.ListRequest) {
	c.JSON(http.StatusOK, dto.Paged(data, total, page))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.OK(data))
}

// Error sends an error response with the given status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.Failure(code, message, middleware.GetRequestID(c)))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// ValidationError sends the 400 body for a failed bind
func (h *BaseHandler) ValidationError(c *gin.Context, err error) {
	middleware.HandleValidationError(c, err)
}

// HandleDomainError converts an error to an HTTP response. Domain errors
// map through their code; anything else is logged and reported as a 500
// without leaking details.
func (h *BaseHandler) HandleDomainError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		code := dto.NormalizeErrorCode(domainErr.Code)
		status := dto.GetHTTPStatus(code)
		if status >= http.StatusInternalServerError {
			logger.GetGinLogger(c).Error("request failed", zap.Error(err))
		}
		if code == dto.ErrCodeLockTimeout {
			c.Header("Retry-After", retryAfterSeconds(1))
		}
		h.Error(c, status, code, domainErr.Message)
		return
	}

	logger.GetGinLogger(c).Error("request failed", zap.Error(err))
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, "An unexpected error occurred")
}

// requireActor returns the X-Actor-ID of the request or writes a 400
func (h *BaseHandler) requireActor(c *gin.Context) (uuid.UUID, bool) {
	actorID, ok := middleware.GetActorID(c)
	if !ok {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidActor, middleware.HeaderActorID+" header is required")
		return uuid.Nil, false
	}
	return actorID, true
}

// pathID parses the :id path parameter or writes a 400
func (h *BaseHandler) pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// optionalUUID parses an already validated optional query value
func optionalUUID(s string) *uuid.UUID {
	if s == "" {
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}

// retryAfterSeconds formats a Retry-After value
func retryAfterSeconds(seconds int) string {
	return strconv.Itoa(seconds)
}
