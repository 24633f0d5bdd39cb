package shared

import "errors"

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause, if any
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches domain errors by code so that errors.Is works against the
// sentinel values below even when the message was customized.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WrapDomainError creates a domain error carrying an underlying cause
func WrapDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ErrorCode extracts the domain error code from err, or "" if err is not a
// domain error.
func ErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Common domain errors
var (
	ErrNotFound                = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists           = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput            = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrInvalidQuantity         = NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
	ErrInvalidState            = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
	ErrInsufficientStock       = NewDomainError("INSUFFICIENT_STOCK", "Insufficient stock available")
	ErrStockConflict           = NewDomainError("STOCK_CONFLICT", "Batch stock changed since allocation was planned")
	ErrLockTimeout             = NewDomainError("LOCK_TIMEOUT", "Timed out acquiring batch lock")
	ErrLedgerMismatch          = NewDomainError("LEDGER_MISMATCH", "Ledger entry does not match stored batch quantity")
	ErrRequestAlreadyProcessed = NewDomainError("REQUEST_ALREADY_PROCESSED", "Fulfillment request was already processed")
	ErrDuplicateAlert          = NewDomainError("DUPLICATE_ALERT", "Alert already raised in the current window")
)
