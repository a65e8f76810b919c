// Package inmemdb implements every repository in memory. It backs tests and local runs without postgres.
package inmemdb

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/audit"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/invoice"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/outbox"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/payment"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/reminder"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/scholarship"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/school"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/tariff"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/webhook"
)

type (
	row[T any] struct {
		seq int64 // insertion order
		val T
	}

	table[T any] map[string]row[T]
)

func (t table[T]) clone() table[T] {
	c := make(table[T], len(t))
	for k, v := range t {
		c[k] = v
	}
	return c
}

// DB holds every table. Transactions are serialized and rolled back by restoring a snapshot.
type DB struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	seq  int64

	classes      table[school.Class]
	students     table[school.Student]
	parents      table[school.Parent]
	scholarships table[scholarship.Scholarship]
	tariffs      table[tariff.Tariff]
	payments     table[payment.Payment]
	invoices     table[invoice.Invoice]
	audit        []audit.Entry
	outbox       table[outbox.Event]
	webhooks     table[webhook.Subscription]
	reminders    table[reminder.Reminder]
}

var _ core.TxRunner = (*DB)(nil)

func NewDB() *DB {
	return &DB{
		classes:      make(table[school.Class]),
		students:     make(table[school.Student]),
		parents:      make(table[school.Parent]),
		scholarships: make(table[scholarship.Scholarship]),
		tariffs:      make(table[tariff.Tariff]),
		payments:     make(table[payment.Payment]),
		invoices:     make(table[invoice.Invoice]),
		audit:        make([]audit.Entry, 0),
		outbox:       make(table[outbox.Event]),
		webhooks:     make(table[webhook.Subscription]),
		reminders:    make(table[reminder.Reminder]),
	}
}

func (db *DB) snapshot() *DB {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return &DB{
		seq:          db.seq,
		classes:      db.classes.clone(),
		students:     db.students.clone(),
		parents:      db.parents.clone(),
		scholarships: db.scholarships.clone(),
		tariffs:      db.tariffs.clone(),
		payments:     db.payments.clone(),
		invoices:     db.invoices.clone(),
		audit:        append([]audit.Entry(nil), db.audit...),
		outbox:       db.outbox.clone(),
		webhooks:     db.webhooks.clone(),
		reminders:    db.reminders.clone(),
	}
}

func (db *DB) restore(snap *DB) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.classes = snap.classes
	db.students = snap.students
	db.parents = snap.parents
	db.scholarships = snap.scholarships
	db.tariffs = snap.tariffs
	db.payments = snap.payments
	db.invoices = snap.invoices
	db.audit = snap.audit
	db.outbox = snap.outbox
	db.webhooks = snap.webhooks
	db.reminders = snap.reminders
}

// RunInTx runs fn alone among transactions. Writes made by fn are undone when it fails.
// Repositories of this package ignore the executor they are given.
func (db *DB) RunInTx(ctx context.Context, fn func(exec core.DBExecutor) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	db.txMu.Lock()
	defer db.txMu.Unlock()

	snap := db.snapshot()
	if err := fn(nil); err != nil {
		db.restore(snap)
		return err
	}
	return nil
}

// nextSeq must be called with db.mu held.
func (db *DB) nextSeq() int64 {
	db.seq++
	return db.seq
}

func insert[T any](db *DB, t table[T], id string, val T) {
	t[id] = row[T]{seq: db.nextSeq(), val: val}
}

// replace keeps the insertion order of the row. It reports whether the row exists.
func replace[T any](t table[T], id string, val T) bool {
	r, ok := t[id]
	if !ok {
		return false
	}
	r.val = val
	t[id] = r
	return true
}

// selectRows returns matching values, oldest first, then sorted by `orderings`.
func selectRows[T any](t table[T], match func(T) bool, orderings []core.DBOrdering, keys map[string]func(T) interface{}) []T {
	rows := make([]row[T], 0, len(t))
	for _, r := range t {
		if match == nil || match(r.val) {
			rows = append(rows, r)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	vals := lo.Map(rows, func(r row[T], _ int) T { return r.val })
	if len(orderings) > 0 && keys != nil {
		sort.SliceStable(vals, func(i, j int) bool {
			for _, ord := range orderings {
				key, ok := keys[ord.Field]
				if !ok {
					continue
				}
				c := compare(key(vals[i]), key(vals[j]))
				if c == 0 {
					continue
				}
				if ord.Ascending {
					return c < 0
				}
				return c > 0
			}
			return false
		})
	}
	return vals
}

func compare(a, b interface{}) int {
	switch x := a.(type) {
	case string:
		return strings.Compare(strings.ToLower(x), strings.ToLower(b.(string)))
	case int:
		y := b.(int)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case time.Time:
		y := b.(time.Time)
		switch {
		case x.Before(y):
			return -1
		case x.After(y):
			return 1
		}
		return 0
	case *time.Time:
		y := b.(*time.Time)
		switch {
		case x == nil && y == nil:
			return 0
		case x == nil:
			return -1
		case y == nil:
			return 1
		}
		return compare(*x, *y)
	case decimal.Decimal:
		return x.Cmp(b.(decimal.Decimal))
	}
	return 0
}

func cloneStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return append([]string{}, s...)
}
