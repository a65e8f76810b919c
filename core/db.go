package core

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

type (
	// DBExecutor is satisfied by both *sqlx.DB and *sqlx.Tx.
	DBExecutor interface {
		sqlx.ExtContext
		GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
		SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
		NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
	}

	// TxRunner runs fn within a single transaction: fn's error rolls everything back.
	// Repositories receive the transaction through their variadic `exec` parameter.
	TxRunner interface {
		RunInTx(ctx context.Context, fn func(exec DBExecutor) error) error
	}
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// FilterOrderings drops orderings on fields that are not allowed.
func FilterOrderings(orderings []DBOrdering, allowed ...string) []DBOrdering {
	filtered := make([]DBOrdering, 0, len(orderings))
	for _, ord := range orderings {
		for _, a := range allowed {
			if ord.Field == a {
				filtered = append(filtered, ord)
				break
			}
		}
	}
	return filtered
}
