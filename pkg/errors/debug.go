package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// LogFields describes err for a log line: the message, its Code when typed,
// every link of the wrap chain and, for Postgres errors from pgx or lib/pq,
// the server's code, constraint and location.
func LogFields(err error) map[string]any {
	if err == nil {
		return map[string]any{}
	}
	var chain []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		chain = append(chain, fmt.Sprintf("%T: %v", e, e))
	}
	fields := map[string]any{
		"error":       err.Error(),
		"error_chain": chain,
	}
	if typed := As(err); typed != nil {
		fields["error_code"] = typed.Code()
	}
	for k, v := range postgresFields(err) {
		if v != "" {
			fields[k] = v
		}
	}
	return fields
}

func postgresFields(err error) map[string]string {
	if pgx := (*pgconn.PgError)(nil); errors.As(err, &pgx) {
		return map[string]string{
			"pg_code":       pgx.Code,
			"pg_constraint": pgx.ConstraintName,
			"pg_table":      pgx.TableName,
			"pg_column":     pgx.ColumnName,
			"pg_detail":     pgx.Detail,
			"pg_message":    pgx.Message,
		}
	}
	if pqe := (*pq.Error)(nil); errors.As(err, &pqe) {
		return map[string]string{
			"pg_code":       string(pqe.Code),
			"pg_constraint": pqe.Constraint,
			"pg_table":      pqe.Table,
			"pg_column":     pqe.Column,
			"pg_detail":     pqe.Detail,
			"pg_message":    pqe.Message,
		}
	}
	return nil
}
