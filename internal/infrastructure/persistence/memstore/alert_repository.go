package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/medrx/backend/internal/domain/alert"
	"github.com/medrx/backend/internal/domain/shared"
)

// AlertRepository implements alert.Repository
type AlertRepository struct {
	store *Store
}

// ExistsSince reports whether an alert with key was created at or after since
func (r *AlertRepository) ExistsSince(_ context.Context, dedupKey string, since time.Time) (bool, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, a := range r.store.alerts {
		if a.DedupKey == dedupKey && !a.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

// Create inserts alerts all-or-nothing on (dedup_key, audience, window_bucket)
func (r *AlertRepository) Create(_ context.Context, alerts ...*alert.LowStockAlert) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	type uniq struct {
		key      string
		audience alert.Audience
		bucket   int64
	}
	seen := make(map[uniq]struct{}, len(r.store.alerts)+len(alerts))
	for _, a := range r.store.alerts {
		seen[uniq{a.DedupKey, a.Audience, a.WindowBucket}] = struct{}{}
	}
	for _, a := range alerts {
		k := uniq{a.DedupKey, a.Audience, a.WindowBucket}
		if _, dup := seen[k]; dup {
			return shared.ErrDuplicateAlert
		}
		seen[k] = struct{}{}
	}
	for _, a := range alerts {
		r.store.alerts = append(r.store.alerts, *a)
	}
	return nil
}

// ListSince returns alerts created at or after since, newest first.
// Supported filter keys: facility_id, medication_id, audience
func (r *AlertRepository) ListSince(_ context.Context, since time.Time, filter shared.Filter) ([]alert.LowStockAlert, int64, error) {
	r.store.mu.RLock()
	out := make([]alert.LowStockAlert, 0)
	for _, a := range r.store.alerts {
		if a.CreatedAt.Before(since) || !matchesAlert(a, filter.Filters) {
			continue
		}
		out = append(out, a)
	}
	r.store.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, filter), int64(len(out)), nil
}

func matchesAlert(a alert.LowStockAlert, filters map[string]interface{}) bool {
	for key, v := range filters {
		switch key {
		case "facility_id":
			if id, ok := asUUID(v); ok && a.FacilityID != id {
				return false
			}
		case "medication_id":
			if id, ok := asUUID(v); ok && a.MedicationID != id {
				return false
			}
		case "audience":
			if s, ok := v.(string); ok && s != "" && string(a.Audience) != s {
				return false
			}
		}
	}
	return true
}

var _ alert.Repository = (*AlertRepository)(nil)
