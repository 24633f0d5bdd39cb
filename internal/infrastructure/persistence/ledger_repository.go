package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/medrx/backend/internal/domain/inventory"
	"github.com/medrx/backend/internal/domain/shared"
	"github.com/medrx/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormLedgerRepository implements inventory.LedgerRepository using GORM.
// It only ever inserts; there is no update or delete path.
type GormLedgerRepository struct {
	db *gorm.DB
}

// NewGormLedgerRepository creates a new GormLedgerRepository
func NewGormLedgerRepository(db *gorm.DB) *GormLedgerRepository {
	return &GormLedgerRepository{db: db}
}

// WithTx returns a new repository instance bound to the given transaction
func (r *GormLedgerRepository) WithTx(tx *gorm.DB) *GormLedgerRepository {
	return &GormLedgerRepository{db: tx}
}

// Append verifies and inserts entries in one statement
func (r *GormLedgerRepository) Append(ctx context.Context, entries ...*inventory.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]*models.LedgerEntryModel, 0, len(entries))
	for _, e := range entries {
		if err := e.Verify(); err != nil {
			return err
		}
		rows = append(rows, models.LedgerEntryModelFromDomain(e))
	}
	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return translateError(err, shared.ErrAlreadyExists)
	}
	return nil
}

// ListByBatch returns a batch's entries oldest first
func (r *GormLedgerRepository) ListByBatch(ctx context.Context, batchID uuid.UUID, filter shared.Filter) ([]inventory.LedgerEntry, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.LedgerEntryModel{}).Where("batch_id = ?", batchID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.LedgerEntryModel
	if err := query.
		Order("created_at ASC").
		Order("id ASC").
		Offset(filter.Offset()).
		Limit(filter.Limit()).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return toDomainEntries(rows), total, nil
}

// ListByReference returns entries carrying the given reference
func (r *GormLedgerRepository) ListByReference(ctx context.Context, reference string) ([]inventory.LedgerEntry, error) {
	var rows []models.LedgerEntryModel
	if err := r.db.WithContext(ctx).
		Where("reference = ?", reference).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainEntries(rows), nil
}

func toDomainEntries(rows []models.LedgerEntryModel) []inventory.LedgerEntry {
	entries := make([]inventory.LedgerEntry, len(rows))
	for i := range rows {
		entries[i] = rows[i].ToDomain()
	}
	return entries
}

var _ inventory.LedgerRepository = (*GormLedgerRepository)(nil)
