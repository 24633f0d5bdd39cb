package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/medrx/backend/internal/domain/inventory"
	"github.com/medrx/backend/internal/domain/shared"
	"github.com/medrx/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormBatchRepository implements inventory.BatchRepository using GORM
type GormBatchRepository struct {
	db   *gorm.DB
	inTx bool
}

// NewGormBatchRepository creates a new GormBatchRepository
func NewGormBatchRepository(db *gorm.DB) *GormBatchRepository {
	return &GormBatchRepository{db: db}
}

// WithTx returns a new repository instance bound to the given transaction
func (r *GormBatchRepository) WithTx(tx *gorm.DB) *GormBatchRepository {
	return &GormBatchRepository{db: tx, inTx: true}
}

// FindByID finds a batch by ID
func (r *GormBatchRepository) FindByID(ctx context.Context, id uuid.UUID) (*inventory.InventoryBatch, error) {
	var model models.BatchModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err, shared.ErrAlreadyExists)
	}
	return model.ToDomain(), nil
}

// FindEligible returns Active batches with stock for a medication, in
// allocation order. uuid.Nil as facilityID matches every facility.
func (r *GormBatchRepository) FindEligible(ctx context.Context, medicationID, facilityID uuid.UUID) ([]inventory.InventoryBatch, error) {
	query := r.db.WithContext(ctx).
		Where("medication_id = ? AND status = ? AND quantity > 0", medicationID, string(inventory.BatchStatusActive))
	if facilityID != uuid.Nil {
		query = query.Where("facility_id = ?", facilityID)
	}

	var rows []models.BatchModel
	if err := query.Order("received_at ASC").Find(&rows).Error; err != nil {
		return nil, translateError(err, shared.ErrAlreadyExists)
	}
	batches := toDomainBatches(rows)
	inventory.SortForAllocation(batches)
	return batches, nil
}

// List returns batches matching the filter
func (r *GormBatchRepository) List(ctx context.Context, filter shared.Filter) ([]inventory.InventoryBatch, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.BatchModel{})
	if v, ok := filter.Filters["medication_id"]; ok {
		query = query.Where("medication_id = ?", v)
	}
	if v, ok := filter.Filters["facility_id"]; ok {
		query = query.Where("facility_id = ?", v)
	}
	if v, ok := filter.Filters["status"]; ok {
		query = query.Where("status = ?", v)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.BatchModel
	if err := query.
		Order(batchSortColumns.orderBy(filter.OrderBy, filter.OrderDir)).
		Offset(filter.Offset()).
		Limit(filter.Limit()).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return toDomainBatches(rows), total, nil
}

// LockForUpdate takes row locks in ascending ID order and returns the locked
// rows. IDs that no longer exist are left out of the result. On PostgreSQL
// a transaction-local lock_timeout bounds each row wait and a context
// deadline of the same length bounds the whole set.
func (r *GormBatchRepository) LockForUpdate(ctx context.Context, ids []uuid.UUID, timeout time.Duration) ([]inventory.InventoryBatch, error) {
	if !r.inTx {
		return nil, shared.NewDomainError("NO_TRANSACTION", "LockForUpdate requires a unit of work")
	}
	sorted := inventory.SortIDs(ids)
	postgres := r.db.Dialector.Name() == DriverPostgres

	if postgres {
		if err := r.db.WithContext(ctx).Exec(lockTimeoutStatement(timeout)).Error; err != nil {
			return nil, translateError(err, shared.ErrAlreadyExists)
		}
	}

	lockCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	db := r.db.WithContext(lockCtx)

	out := make([]inventory.InventoryBatch, 0, len(sorted))
	for _, id := range sorted {
		query := db
		if postgres {
			query = query.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var rows []models.BatchModel
		if err := query.Where("id = ?", id).Find(&rows).Error; err != nil {
			return nil, lockError(ctx, lockCtx, err)
		}
		if len(rows) == 0 {
			continue
		}
		out = append(out, *rows[0].ToDomain())
	}
	return out, nil
}

// lockError reports a lock wait cut short by the set deadline as a lock
// timeout. Cancellation of the caller's own context is passed through.
func lockError(ctx, lockCtx context.Context, err error) error {
	if ctx.Err() == nil && errors.Is(lockCtx.Err(), context.DeadlineExceeded) {
		return shared.WrapDomainError(shared.ErrLockTimeout.Code, shared.ErrLockTimeout.Message, err)
	}
	return translateError(err, shared.ErrAlreadyExists)
}

// lockTimeoutStatement builds the SET LOCAL statement; SET does not accept
// bind parameters, so the value is formatted as an integer literal.
func lockTimeoutStatement(timeout time.Duration) string {
	ms := timeout.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", ms)
}

// Create inserts a new batch
func (r *GormBatchRepository) Create(ctx context.Context, batch *inventory.InventoryBatch) error {
	model := models.BatchModelFromDomain(batch)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return translateError(err, shared.ErrAlreadyExists)
	}
	return nil
}

// Save updates quantity, status, alert flag and version of an existing batch
func (r *GormBatchRepository) Save(ctx context.Context, batch *inventory.InventoryBatch) error {
	result := r.db.WithContext(ctx).
		Model(&models.BatchModel{}).
		Where("id = ?", batch.ID).
		Updates(map[string]interface{}{
			"quantity":   batch.Quantity,
			"status":     string(batch.Status),
			"alert_sent": batch.AlertSent,
			"version":    batch.Version,
			"updated_at": batch.UpdatedAt,
		})
	if result.Error != nil {
		return translateError(result.Error, shared.ErrAlreadyExists)
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetAlertSent updates only the alert flag
func (r *GormBatchRepository) SetAlertSent(ctx context.Context, id uuid.UUID, sent bool) error {
	result := r.db.WithContext(ctx).
		Model(&models.BatchModel{}).
		Where("id = ?", id).
		Update("alert_sent", sent)
	if result.Error != nil {
		return translateError(result.Error, shared.ErrAlreadyExists)
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func toDomainBatches(rows []models.BatchModel) []inventory.InventoryBatch {
	batches := make([]inventory.InventoryBatch, len(rows))
	for i := range rows {
		batches[i] = *rows[i].ToDomain()
	}
	return batches
}

var _ inventory.BatchRepository = (*GormBatchRepository)(nil)
