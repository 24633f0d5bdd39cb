package memstore

import (
	"context"

	"github.com/google/uuid"
	"github.com/medrx/backend/internal/domain/fulfillment"
	"github.com/medrx/backend/internal/domain/shared"
)

// RequestRepository implements fulfillment.RequestRepository
type RequestRepository struct {
	store *Store
	tx    *tx
}

// clone copies a request without its pending domain events
func clone(r *fulfillment.Request) fulfillment.Request {
	c := *r
	c.ClearDomainEvents()
	c.LineItems = append([]fulfillment.LineItem(nil), r.LineItems...)
	if r.ProcessedAt != nil {
		t := *r.ProcessedAt
		c.ProcessedAt = &t
	}
	return c
}

// FindByID finds a request by ID
func (r *RequestRepository) FindByID(_ context.Context, id uuid.UUID) (*fulfillment.Request, error) {
	if r.tx != nil {
		if req, ok := r.tx.requests[id]; ok {
			c := clone(&req)
			return &c, nil
		}
	}
	r.store.mu.RLock()
	req, ok := r.store.requests[id]
	r.store.mu.RUnlock()
	if !ok {
		return nil, shared.ErrNotFound
	}
	c := clone(&req)
	return &c, nil
}

// LockForUpdate locks the request until the unit of work ends
func (r *RequestRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*fulfillment.Request, error) {
	if r.tx == nil {
		return nil, shared.NewDomainError("NO_TRANSACTION", "LockForUpdate requires a unit of work")
	}
	if err := r.tx.lock(ctx, id, r.store.requestLockTimeout); err != nil {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

// Create inserts a new request
func (r *RequestRepository) Create(ctx context.Context, req *fulfillment.Request) error {
	if _, err := r.FindByID(ctx, req.ID); err == nil {
		return shared.ErrAlreadyExists
	}
	if r.tx != nil {
		r.tx.requests[req.ID] = clone(req)
		return nil
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.requests[req.ID]; ok {
		return shared.ErrAlreadyExists
	}
	r.store.requests[req.ID] = clone(req)
	return nil
}

// Save updates an existing request
func (r *RequestRepository) Save(ctx context.Context, req *fulfillment.Request) error {
	if _, err := r.FindByID(ctx, req.ID); err != nil {
		return err
	}
	if r.tx != nil {
		r.tx.requests[req.ID] = clone(req)
		return nil
	}
	r.store.mu.Lock()
	r.store.requests[req.ID] = clone(req)
	r.store.mu.Unlock()
	return nil
}

var _ fulfillment.RequestRepository = (*RequestRepository)(nil)
