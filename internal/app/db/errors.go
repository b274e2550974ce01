package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL SQLSTATE codes the stores react to.
const (
	codeUniqueViolation = "23505"
	codeCheckViolation  = "23514"
)

// singleExpiryConstraint is the CHECK that keeps a message in exactly one expiry mode.
const singleExpiryConstraint = "messages_single_expiry_mode"

// ErrConflictingExpiry is returned when a message carries both an absolute expiry and the
// on-disconnect flag.
var ErrConflictingExpiry = errors.New("message has both an absolute expiry and on-disconnect expiry")

// pgError unwraps err to the driver error, if there is one.
func pgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// IsUniqueViolation checks if the error is a PostgreSQL unique constraint violation (code 23505).
func IsUniqueViolation(err error) bool {
	pgErr, ok := pgError(err)
	return ok && pgErr.Code == codeUniqueViolation
}

// isConflictingExpiry reports whether err is the single-expiry-mode CHECK failing.
func isConflictingExpiry(err error) bool {
	pgErr, ok := pgError(err)
	return ok && pgErr.Code == codeCheckViolation && pgErr.ConstraintName == singleExpiryConstraint
}
