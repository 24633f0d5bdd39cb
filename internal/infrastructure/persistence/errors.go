package persistence

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/medrx/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// PostgreSQL error codes the stores react to
const (
	pgLockNotAvailable = "55P03"
	pgQueryCanceled    = "57014"
	pgDeadlockDetected = "40P01"
	pgUniqueViolation  = "23505"
)

// translateError maps driver errors to domain errors. onDuplicate is returned
// for unique violations so each store can name its own collision.
func translateError(err error, onDuplicate error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return shared.ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return onDuplicate
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgLockNotAvailable, pgQueryCanceled, pgDeadlockDetected:
			return shared.WrapDomainError(shared.ErrLockTimeout.Code, shared.ErrLockTimeout.Message, err)
		case pgUniqueViolation:
			return onDuplicate
		}
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "database is locked"), strings.Contains(msg, "database table is locked"):
		return shared.WrapDomainError(shared.ErrLockTimeout.Code, shared.ErrLockTimeout.Message, err)
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return onDuplicate
	}
	return err
}
