// Package pgrepos implements the domain repositories on PostgreSQL with sqlx & squirrel.
package pgrepos

import (
	"context"
	"database/sql"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/bursar/core"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// DATE columns are written as plain dates so the session time zone never shifts them.
const dateLayout = "2006-01-02"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// pqViolation returns the constraint violated by err, if err is a unique or FK violation.
func pqViolation(err error) (code, constraint string) {
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok {
		switch string(pqErr.Code) {
		case codeUniqueViolation, codeForeignKeyViolation:
			return string(pqErr.Code), pqErr.Constraint
		}
	}
	return "", ""
}

// trapNoRowsErr maps sql.ErrNoRows to notFound.
func trapNoRowsErr(err, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// orderBy keeps the orderings on columns; unknown fields are dropped.
func orderBy(ordering []core.DBOrdering, columns map[string]bool, defaults ...string) []string {
	clauses := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		if columns[ord.Field] {
			clauses = append(clauses, ord.String())
		}
	}
	if len(clauses) == 0 {
		return defaults
	}
	return clauses
}

func get(ctx context.Context, exec core.DBExecutor, dest interface{}, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return exec.GetContext(ctx, dest, query, args...)
}

func selectAll(ctx context.Context, exec core.DBExecutor, dest interface{}, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return exec.SelectContext(ctx, dest, query, args...)
}

func execute(ctx context.Context, exec core.DBExecutor, b sq.Sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	return exec.ExecContext(ctx, query, args...)
}

// withTx runs fn in a transaction, committed only when fn succeeds.
func withTx(ctx context.Context, db core.DB, opts *sql.TxOptions, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func returning(columns []string) string {
	return "RETURNING " + strings.Join(columns, ", ")
}
