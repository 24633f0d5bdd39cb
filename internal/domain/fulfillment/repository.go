package fulfillment

import (
	"context"

	"github.com/google/uuid"
)

// RequestRepository persists fulfillment requests
type RequestRepository interface {
	// FindByID finds a request by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Request, error)

	// LockForUpdate returns the request with an exclusive row lock held until
	// the enclosing unit of work ends. Returns shared.ErrNotFound if absent.
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Request, error)

	// Create inserts a new request
	Create(ctx context.Context, r *Request) error

	// Save updates status, reason and version
	Save(ctx context.Context, r *Request) error
}
