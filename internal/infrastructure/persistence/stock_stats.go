package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/medrx/backend/internal/domain/inventory"
	"github.com/medrx/backend/internal/infrastructure/persistence/models"
	"github.com/medrx/backend/internal/infrastructure/telemetry"
	"gorm.io/gorm"
)

// GormStockStats aggregates active batch figures per facility for the stock gauges
type GormStockStats struct {
	db *gorm.DB
}

// NewGormStockStats creates a new GormStockStats
func NewGormStockStats(db *gorm.DB) *GormStockStats {
	return &GormStockStats{db: db}
}

type facilityStockRow struct {
	FacilityID    uuid.UUID
	ActiveBatches int64
	LowStock      int64
	UnitsOnHand   int64
}

// StockStatsByFacility returns one row per facility that has active stock
func (s *GormStockStats) StockStatsByFacility(ctx context.Context) ([]telemetry.FacilityStockStats, error) {
	var rows []facilityStockRow
	err := s.db.WithContext(ctx).
		Model(&models.BatchModel{}).
		Select(`facility_id,
			COUNT(*) AS active_batches,
			SUM(CASE WHEN quantity <= reorder_threshold THEN 1 ELSE 0 END) AS low_stock,
			COALESCE(SUM(quantity), 0) AS units_on_hand`).
		Where("status = ? AND quantity > 0", string(inventory.BatchStatusActive)).
		Group("facility_id").
		Order("facility_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]telemetry.FacilityStockStats, len(rows))
	for i, r := range rows {
		out[i] = telemetry.FacilityStockStats{
			FacilityID:    r.FacilityID.String(),
			ActiveBatches: r.ActiveBatches,
			LowStock:      r.LowStock,
			UnitsOnHand:   r.UnitsOnHand,
		}
	}
	return out, nil
}

var _ telemetry.StockStatsProvider = (*GormStockStats)(nil)
