package persistence

import (
	"context"
	"time"

	"github.com/medrx/backend/internal/domain/alert"
	"github.com/medrx/backend/internal/domain/shared"
	"github.com/medrx/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormAlertRepository implements alert.Repository using GORM
type GormAlertRepository struct {
	db *gorm.DB
}

// NewGormAlertRepository creates a new GormAlertRepository
func NewGormAlertRepository(db *gorm.DB) *GormAlertRepository {
	return &GormAlertRepository{db: db}
}

// ExistsSince reports whether an alert with key was created at or after since
func (r *GormAlertRepository) ExistsSince(ctx context.Context, dedupKey string, since time.Time) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.LowStockAlertModel{}).
		Where("dedup_key = ? AND created_at >= ?", dedupKey, since).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Create inserts all alerts in one statement
func (r *GormAlertRepository) Create(ctx context.Context, alerts ...*alert.LowStockAlert) error {
	if len(alerts) == 0 {
		return nil
	}
	rows := make([]*models.LowStockAlertModel, len(alerts))
	for i, a := range alerts {
		rows[i] = models.LowStockAlertModelFromDomain(a)
	}
	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return translateError(err, shared.ErrDuplicateAlert)
	}
	return nil
}

// ListSince returns alerts created at or after since, newest first.
// Supported filter keys: facility_id, medication_id, audience
func (r *GormAlertRepository) ListSince(ctx context.Context, since time.Time, filter shared.Filter) ([]alert.LowStockAlert, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.LowStockAlertModel{}).Where("created_at >= ?", since)
	if v, ok := filter.Filters["facility_id"]; ok {
		query = query.Where("facility_id = ?", v)
	}
	if v, ok := filter.Filters["medication_id"]; ok {
		query = query.Where("medication_id = ?", v)
	}
	if v, ok := filter.Filters["audience"]; ok {
		query = query.Where("audience = ?", v)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.LowStockAlertModel
	if err := query.
		Order("created_at DESC").
		Order("id ASC").
		Offset(filter.Offset()).
		Limit(filter.Limit()).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	out := make([]alert.LowStockAlert, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, total, nil
}

var _ alert.Repository = (*GormAlertRepository)(nil)
