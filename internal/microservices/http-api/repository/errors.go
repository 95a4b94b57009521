package repository

import (
	"errors"

	"coursehub/internal/shared"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	pgForeignKeyViolation       = "23503"
	pgInvalidTextRepresentation = "22P02"
)

// storeError classifies a driver error. Postgres rejecting an id literal
// (e.g. a non-UUID key) is a validation failure, not an outage.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgInvalidTextRepresentation {
		return shared.NewValidationError("key", "malformed identifier")
	}
	return shared.StorageError(op, err)
}

// upsertError maps a failed upsert. A foreign key violation means the user or
// lesson vanished between the reference check and the write.
func upsertError(err error, userID, lessonID string) error {
	var pgErr *pgconn.PgError
	if errors.Is(err, gorm.ErrForeignKeyViolated) || (errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation) {
		return shared.ReferenceError("user or lesson", userID+"/"+lessonID)
	}
	return storeError("upsert progress", err)
}

// lessonAlive matches a lesson that is neither soft-deleted itself nor inside a soft-deleted module.
const lessonAlive = `EXISTS (
    SELECT 1 FROM lessons l
    JOIN course_modules m ON m.id = l.module_id AND m.deleted_at IS NULL
    WHERE l.id = ? AND l.deleted_at IS NULL)`
