package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// SQLSTATE classes the stores branch on.
const (
	SQLStateUniqueViolation = "23505"
	SQLStateCheckViolation  = "23514"
	SQLStateForeignKey      = "23503"
)

// ErrorDump is the structured form of an error chain written to logs on 5xx responses.
type ErrorDump struct {
	TopMessage string `json:"top_message"`
	Code       Code   `json:"code,omitempty"`

	Chain []string `json:"chain,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGColumn     string `json:"pg_column,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`
}

type pgFields struct {
	code, constraint, table, column, detail, message string
}

// postgresFields extracts server error fields from either driver in the chain.
func postgresFields(err error) (pgFields, bool) {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgFields{
			code:       pgxErr.Code,
			constraint: pgxErr.ConstraintName,
			table:      pgxErr.TableName,
			column:     pgxErr.ColumnName,
			detail:     pgxErr.Detail,
			message:    pgxErr.Message,
		}, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pgFields{
			code:       string(pqErr.Code),
			constraint: pqErr.Constraint,
			table:      pqErr.Table,
			column:     pqErr.Column,
			detail:     pqErr.Detail,
			message:    pqErr.Message,
		}, true
	}
	return pgFields{}, false
}

// SQLState returns the postgres SQLSTATE and constraint name carried by err,
// or empty strings when err did not come from postgres.
func SQLState(err error) (code, constraint string) {
	if err == nil {
		return "", ""
	}
	f, ok := postgresFields(err)
	if !ok {
		return "", ""
	}
	return f.code, f.constraint
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	if f, ok := postgresFields(err); ok {
		d.PGCode = f.code
		d.PGConstraint = f.constraint
		d.PGTable = f.table
		d.PGColumn = f.column
		d.PGDetail = f.detail
		d.PGMessage = f.message
	}
	return d
}
