package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/medrx/backend/internal/domain/fulfillment"
	"github.com/medrx/backend/internal/domain/shared"
	"github.com/medrx/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultRequestLockTimeout bounds the wait for a request row lock
const DefaultRequestLockTimeout = 5 * time.Second

// GormRequestRepository implements fulfillment.RequestRepository using GORM
type GormRequestRepository struct {
	db          *gorm.DB
	inTx        bool
	lockTimeout time.Duration
}

// NewGormRequestRepository creates a new GormRequestRepository
func NewGormRequestRepository(db *gorm.DB) *GormRequestRepository {
	return &GormRequestRepository{db: db, lockTimeout: DefaultRequestLockTimeout}
}

// WithLockTimeout sets the request row lock timeout
func (r *GormRequestRepository) WithLockTimeout(d time.Duration) *GormRequestRepository {
	if d > 0 {
		r.lockTimeout = d
	}
	return r
}

// WithTx returns a new repository instance bound to the given transaction
func (r *GormRequestRepository) WithTx(tx *gorm.DB) *GormRequestRepository {
	return &GormRequestRepository{db: tx, inTx: true, lockTimeout: r.lockTimeout}
}

// FindByID finds a request by ID with its line items
func (r *GormRequestRepository) FindByID(ctx context.Context, id uuid.UUID) (*fulfillment.Request, error) {
	return r.find(ctx, r.db.WithContext(ctx), id)
}

// LockForUpdate returns the request with an exclusive row lock held until
// the transaction ends
func (r *GormRequestRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*fulfillment.Request, error) {
	if !r.inTx {
		return nil, shared.NewDomainError("NO_TRANSACTION", "LockForUpdate requires a unit of work")
	}
	db := r.db.WithContext(ctx)
	if r.db.Dialector.Name() == DriverPostgres {
		if err := db.Exec(lockTimeoutStatement(r.lockTimeout)).Error; err != nil {
			return nil, translateError(err, shared.ErrAlreadyExists)
		}
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return r.find(ctx, db, id)
}

func (r *GormRequestRepository) find(ctx context.Context, db *gorm.DB, id uuid.UUID) (*fulfillment.Request, error) {
	var model models.FulfillmentRequestModel
	if err := db.First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err, shared.ErrAlreadyExists)
	}
	// Items are loaded separately so the row lock above covers only the request.
	if err := r.db.WithContext(ctx).
		Where("request_id = ?", id).
		Order("position ASC").
		Find(&model.Items).Error; err != nil {
		return nil, translateError(err, shared.ErrAlreadyExists)
	}
	return model.ToDomain(), nil
}

// Create inserts a new request and its line items
func (r *GormRequestRepository) Create(ctx context.Context, req *fulfillment.Request) error {
	model := models.FulfillmentRequestModelFromDomain(req)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return translateError(err, shared.ErrAlreadyExists)
	}
	return nil
}

// Save updates status, reason, retry state, approver and version
func (r *GormRequestRepository) Save(ctx context.Context, req *fulfillment.Request) error {
	updates := map[string]interface{}{
		"status":               string(req.Status),
		"rejection_reason":     req.RejectionReason,
		"processed_at":         req.ProcessedAt,
		"transient":            req.Transient,
		"transient_rejections": req.TransientRejections,
		"version":              req.Version,
		"updated_at":           req.UpdatedAt,
		"approved_by":          nil,
	}
	if req.ApprovedBy != uuid.Nil {
		updates["approved_by"] = req.ApprovedBy
	}
	result := r.db.WithContext(ctx).
		Model(&models.FulfillmentRequestModel{}).
		Where("id = ?", req.ID).
		Updates(updates)
	if result.Error != nil {
		return translateError(result.Error, shared.ErrAlreadyExists)
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ fulfillment.RequestRepository = (*GormRequestRepository)(nil)
