package bunstore

import (
	"errors"

	"github.com/uptrace/bun/driver/pgdriver"
)

// isDuplicateKey checks if a PostgreSQL error is a unique_violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	return false
}

// isUndefinedTable checks for undefined_table (42P01).
func isUndefinedTable(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "42P01"
	}
	return false
}
