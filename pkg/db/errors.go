package db

import (
	"strings"

	pkgerrors "github.com/angelmondragon/codfulfillment-backend/pkg/errors"
)

// IsUniqueViolation reports whether err is a unique constraint violation.
// Postgres errors are matched on SQLSTATE and constraint name; SQLite errors
// fall back to the driver message. An empty constraintName matches any.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if code, constraint := pkgerrors.SQLState(err); code != "" {
		return code == pkgerrors.SQLStateUniqueViolation && (constraintName == "" || constraint == constraintName)
	}
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") && !strings.Contains(msg, "duplicate key value") {
		return false
	}
	return constraintName == "" || strings.Contains(msg, constraintName)
}

// IsCheckViolation reports whether err comes from a CHECK constraint.
func IsCheckViolation(err error) bool {
	if err == nil {
		return false
	}
	if code, _ := pkgerrors.SQLState(err); code != "" {
		return code == pkgerrors.SQLStateCheckViolation
	}
	msg := err.Error()
	return strings.Contains(msg, "violates check constraint") || strings.Contains(msg, "CHECK constraint failed")
}
