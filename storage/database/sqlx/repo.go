// Package sqlxrepos implements the repositories on postgres with sqlx.
package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type repo struct {
	exec core.DBExecutor
}

func (r repo) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return r.exec
}

func (r repo) get(ctx context.Context, exec core.DBExecutor, dest interface{}, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return exec.GetContext(ctx, dest, query, args...)
}

func (r repo) selectAll(ctx context.Context, exec core.DBExecutor, dest interface{}, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return exec.SelectContext(ctx, dest, query, args...)
}

func (r repo) run(ctx context.Context, exec core.DBExecutor, b sq.Sqlizer) (int, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	res, err := exec.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r repo) exists(ctx context.Context, b sq.SelectBuilder) (bool, error) {
	var exists bool
	err := r.get(ctx, r.exec, &exists, b.Prefix("SELECT EXISTS (").Suffix(")"))
	return exists, err
}

func (r repo) count(ctx context.Context, b sq.SelectBuilder) (int, error) {
	var n int
	err := r.get(ctx, r.exec, &n, b)
	return n, err
}

// trapNoRows maps "no rows" (and malformed ids) to `notFound`.
func trapNoRows(err error, notFound error, msg string) error {
	if err == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// orderBy maps API ordering fields to columns; unknown fields are dropped.
func orderBy(b sq.SelectBuilder, orderings []core.DBOrdering, columns map[string]string, fallback string) sq.SelectBuilder {
	clauses := make([]string, 0, len(orderings))
	for _, ord := range orderings {
		col, ok := columns[ord.Field]
		if !ok {
			continue
		}
		ord.Field = col
		clauses = append(clauses, ord.String())
	}
	if len(clauses) == 0 {
		return b.OrderBy(fallback)
	}
	return b.OrderBy(append(clauses, fallback)...)
}

func ilike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return "%" + r.Replace(s) + "%"
}

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}

func nullTime(t *time.Time) null.Time {
	return null.TimeFromPtr(t)
}

func insertRow(ctx context.Context, exec core.DBExecutor, table string, columns []string, row interface{}) error {
	query := "INSERT INTO " + table + " (" + strings.Join(columns, ", ") + ") VALUES (:" + strings.Join(columns, ", :") + ")"
	_, err := exec.NamedExecContext(ctx, query, row)
	return err
}

// updateRow sets every column but the id, and reports whether the row exists.
func updateRow(ctx context.Context, exec core.DBExecutor, table string, columns []string, row interface{}) (bool, error) {
	sets := make([]string, 0, len(columns))
	for _, col := range columns {
		if col != "id" {
			sets = append(sets, col+" = :"+col)
		}
	}
	query := "UPDATE " + table + " SET " + strings.Join(sets, ", ") + " WHERE id = :id"
	res, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func validIDs(ids []string) []string {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if validID(id) {
			valid = append(valid, id)
		}
	}
	return valid
}

// eqID matches a uuid column. A malformed id matches nothing instead of failing the cast.
func eqID(column, id string) sq.Sqlizer {
	if !validID(id) {
		return sq.Expr("FALSE")
	}
	return sq.Eq{column: id}
}

func joinColumns(columns []string) string {
	return strings.Join(columns, ", ")
}
