package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict is returned by a ledger commit whose expected
	// version no longer matches the stored row.
	ErrVersionConflict = errors.New("ledger version conflict")
	// ErrDuplicateProviderTransaction is returned when a purchase record
	// reuses an external provider transaction id.
	ErrDuplicateProviderTransaction = errors.New("provider transaction already recorded")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
