package database

import (
	"errors"

	"github.com/OpenNSW/enrollment/internal/apperror"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// MapError converts driver constraint violations into coded application
// errors. Other errors are returned unchanged.
func MapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return apperror.New(apperror.CodeConflict, "resource with the same unique attributes already exists")
		case pgForeignKeyViolation:
			return apperror.New(apperror.CodeValidation, "invalid foreign key reference")
		}
	}
	return err
}
