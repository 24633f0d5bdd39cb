package alert

import (
	"context"
	"time"

	"github.com/medrx/backend/internal/domain/shared"
)

// Repository stores alert history
type Repository interface {
	// ExistsSince reports whether an alert with key was created at or after since
	ExistsSince(ctx context.Context, dedupKey string, since time.Time) (bool, error)

	// Create inserts alerts in one statement. A unique-key collision returns
	// shared.ErrDuplicateAlert and inserts nothing.
	Create(ctx context.Context, alerts ...*LowStockAlert) error

	// ListSince returns alerts created at or after since, newest first
	ListSince(ctx context.Context, since time.Time, filter shared.Filter) ([]LowStockAlert, int64, error)
}
