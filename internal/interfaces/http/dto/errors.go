package dto

import (
	"net/http"
	"strings"
)

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	ErrCodeUnknown  = "ERR_UNKNOWN"
	ErrCodeInternal = "ERR_INTERNAL"
)

// Validation error codes
const (
	ErrCodeValidation      = "ERR_VALIDATION"
	ErrCodeInvalidQuantity = "ERR_INVALID_QUANTITY"
)

// Resource error codes
const (
	ErrCodeNotFound      = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists = "ERR_ALREADY_EXISTS"
	ErrCodeConflict      = "ERR_CONFLICT"
	// ErrCodeAlreadyProcessed is returned when a request is past Pending
	ErrCodeAlreadyProcessed = "ERR_REQUEST_ALREADY_PROCESSED"
)

// Fulfillment error codes
const (
	ErrCodeInvalidState      = "ERR_INVALID_STATE"
	ErrCodeInsufficientStock = "ERR_INSUFFICIENT_STOCK"
	// ErrCodeStockConflict means stock changed between plan and commit
	ErrCodeStockConflict = "ERR_STOCK_CONFLICT"
	// ErrCodeLockTimeout means a batch lock was not acquired in time; retryable
	ErrCodeLockTimeout = "ERR_LOCK_TIMEOUT"
	// ErrCodeLedgerMismatch means a ledger after-quantity disagreed with the batch
	ErrCodeLedgerMismatch = "ERR_LEDGER_MISMATCH"
	// ErrCodeRejected is the code of a fulfillment that ended Rejected
	ErrCodeRejected = "ERR_FULFILLMENT_REJECTED"
)

// Input error codes
const (
	ErrCodeBadRequest   = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	ErrCodeInvalidJSON  = "ERR_INVALID_JSON"
	ErrCodeInvalidActor = "ERR_INVALID_ACTOR"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeInvalidQuantity: http.StatusBadRequest,

	ErrCodeNotFound:         http.StatusNotFound,
	ErrCodeAlreadyExists:    http.StatusConflict,
	ErrCodeConflict:         http.StatusConflict,
	ErrCodeAlreadyProcessed: http.StatusConflict,

	ErrCodeInvalidState:      http.StatusUnprocessableEntity,
	ErrCodeInsufficientStock: http.StatusUnprocessableEntity,
	ErrCodeStockConflict:     http.StatusConflict,
	ErrCodeLockTimeout:       http.StatusServiceUnavailable,
	ErrCodeLedgerMismatch:    http.StatusInternalServerError,
	ErrCodeRejected:          http.StatusConflict,

	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeInvalidInput: http.StatusBadRequest,
	ErrCodeInvalidJSON:  http.StatusBadRequest,
	ErrCodeInvalidActor: http.StatusBadRequest,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Codes outside the table fall back on their shape: INVALID_* and
// EMPTY_* are client errors, *_NOT_FOUND is 404, anything else is 500.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	bare := strings.TrimPrefix(code, "ERR_")
	switch {
	case strings.HasPrefix(bare, "INVALID_"), strings.HasPrefix(bare, "EMPTY_"):
		return http.StatusBadRequest
	case strings.HasSuffix(bare, "NOT_FOUND"):
		return http.StatusNotFound
	case strings.HasPrefix(bare, "BATCH_"):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain error codes to API codes
var DomainErrorCodeMapping = map[string]string{
	"NOT_FOUND":                 ErrCodeNotFound,
	"ALREADY_EXISTS":            ErrCodeAlreadyExists,
	"INVALID_INPUT":             ErrCodeInvalidInput,
	"INVALID_QUANTITY":          ErrCodeInvalidQuantity,
	"INVALID_STATE":             ErrCodeInvalidState,
	"INSUFFICIENT_STOCK":        ErrCodeInsufficientStock,
	"STOCK_CONFLICT":            ErrCodeStockConflict,
	"LOCK_TIMEOUT":              ErrCodeLockTimeout,
	"LEDGER_MISMATCH":           ErrCodeLedgerMismatch,
	"REQUEST_ALREADY_PROCESSED": ErrCodeAlreadyProcessed,
	"DUPLICATE_ALERT":           ErrCodeConflict,
	"INVALID_ACTOR":             ErrCodeInvalidActor,
}

// NormalizeErrorCode converts a domain error code to the API format.
// Unmapped codes get the ERR_ prefix.
func NormalizeErrorCode(code string) string {
	if newCode, ok := DomainErrorCodeMapping[code]; ok {
		return newCode
	}
	if code == "" || strings.HasPrefix(code, "ERR_") {
		return code
	}
	return "ERR_" + code
}
