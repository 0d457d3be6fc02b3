package postgres

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// uniqueViolation reports whether err is a unique-constraint failure and, when
// the driver exposes it, which constraint fired.
func uniqueViolation(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return pgErr.ConstraintName, true
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return "", true
	}
	// sqlite: "UNIQUE constraint failed: loans.borrower_id"
	if msg := err.Error(); strings.Contains(msg, "UNIQUE constraint failed") {
		if i := strings.LastIndex(msg, ": "); i >= 0 {
			return msg[i+2:], true
		}
		return "", true
	}
	return "", false
}
