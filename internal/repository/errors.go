package repository

import (
	"errors"
	"fmt"

	"storefront/internal/domain"

	"github.com/jackc/pgx/v5/pgconn"
)

const foreignKeyViolation = "23503"

// ErrUnknownUser is returned when a cart or order references a user the
// identity store has not provisioned
var ErrUnknownUser = fmt.Errorf("unknown user: %w", domain.ErrUnauthenticated)

// isForeignKeyViolation reports whether err is a PostgreSQL foreign key
// violation on the named constraint
func isForeignKeyViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == foreignKeyViolation && pgErr.ConstraintName == constraint
}
