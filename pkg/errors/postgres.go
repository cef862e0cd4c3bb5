package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// PGFields is the part of a Postgres error worth logging. Both pgx and
// lib/pq errors are read so callers need not care which driver raised it.
type PGFields struct {
	SQLState   string `json:"pg_code,omitempty"`
	Constraint string `json:"pg_constraint,omitempty"`
	Table      string `json:"pg_table,omitempty"`
	Column     string `json:"pg_column,omitempty"`
	Detail     string `json:"pg_detail,omitempty"`
	Message    string `json:"pg_message,omitempty"`
}

func PostgresFields(err error) (PGFields, bool) {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return PGFields{
			SQLState:   pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return PGFields{
			SQLState:   string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}, true
	}
	return PGFields{}, false
}

// sqlStateCodes maps the SQLSTATEs the workflow can provoke to domain codes.
// Anything unlisted is a dependency failure.
var sqlStateCodes = map[string]Code{
	"23505": CodeConflict,   // unique_violation, e.g. a second invoice for one request
	"23514": CodeValidation, // check_violation on status or money columns
	"23502": CodeValidation, // not_null_violation
	"23503": CodeValidation, // foreign_key_violation
	"22003": CodeValidation, // numeric_value_out_of_range, qty or price too large
	"22P02": CodeValidation, // invalid_text_representation
	"40001": CodeDependency, // serialization_failure
	"40P01": CodeDependency, // deadlock_detected
	"55P03": CodeDependency, // lock_not_available
}

// FromDB classifies a storage error. Typed errors pass through unchanged so
// service code can call it on whatever a transaction returned.
func FromDB(err error, message string) error {
	if err == nil {
		return nil
	}
	if As(err) != nil {
		return err
	}
	fields, ok := PostgresFields(err)
	if !ok {
		return Wrap(CodeDependency, err, message)
	}
	code, known := sqlStateCodes[fields.SQLState]
	if !known {
		code = CodeDependency
	}
	wrapped := Wrap(code, err, message)
	if code == CodeDependency {
		return wrapped
	}
	details := map[string]any{"sqlstate": fields.SQLState}
	if fields.Constraint != "" {
		details["constraint"] = fields.Constraint
	}
	if fields.Column != "" {
		details["field"] = fields.Column
	}
	return wrapped.WithDetails(details)
}

// ErrorDump flattens an error chain for structured logs.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Retryable  bool     `json:"retryable"`
	Chain      []string `json:"chain,omitempty"`
	PGFields
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
		d.Retryable = MetadataFor(d.Code).Retryable
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	d.PGFields, _ = PostgresFields(err)
	return d
}
