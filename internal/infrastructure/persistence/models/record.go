package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/medrx/backend/internal/domain/shared"
)

// Record holds the identity columns shared by batches and requests
type Record struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func recordOf(e shared.BaseEntity) Record {
	return Record{ID: e.ID, CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt}
}

func (r Record) entity() shared.BaseEntity {
	return shared.BaseEntity{ID: r.ID, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
}

// VersionedRecord adds the aggregate version. Pending domain events are not
// persisted; a loaded aggregate starts with none.
type VersionedRecord struct {
	Record
	Version int `gorm:"not null;default:1"`
}

func versionedOf(a shared.BaseAggregateRoot) VersionedRecord {
	return VersionedRecord{Record: recordOf(a.BaseEntity), Version: a.Version}
}

func (r VersionedRecord) aggregate() shared.BaseAggregateRoot {
	return shared.BaseAggregateRoot{BaseEntity: r.entity(), Version: r.Version}
}
