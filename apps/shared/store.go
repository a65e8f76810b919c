package shared

import (
	"github.com/jmoiron/sqlx"

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
	"github.com/chaima229/fraisScolaire-backend-sub000/storage/database"
	inmemdb "github.com/chaima229/fraisScolaire-backend-sub000/storage/database/inmem"
	sqlxrepos "github.com/chaima229/fraisScolaire-backend-sub000/storage/database/sqlx"
)

// Store groups the repositories of one backend with the transaction runner they share.
type Store struct {
	Tx           core.TxRunner
	Classes      school.ClassRepository
	Students     school.StudentRepository
	Parents      school.ParentRepository
	Scholarships scholarship.Repository
	Tariffs      tariff.Repository
	Payments     payment.Repository
	Invoices     invoice.Repository
	Audit        audit.Repository
	Outbox       outbox.Repository
	Webhooks     webhook.Repository
	Reminders    reminder.Repository
}

func NewMemoryStore(db *inmemdb.DB) Store {
	return Store{
		Tx:           db,
		Classes:      inmemdb.NewClassRepository(db),
		Students:     inmemdb.NewStudentRepository(db),
		Parents:      inmemdb.NewParentRepository(db),
		Scholarships: inmemdb.NewScholarshipRepository(db),
		Tariffs:      inmemdb.NewTariffRepository(db),
		Payments:     inmemdb.NewPaymentRepository(db),
		Invoices:     inmemdb.NewInvoiceRepository(db),
		Audit:        inmemdb.NewAuditRepository(db),
		Outbox:       inmemdb.NewOutboxRepository(db),
		Webhooks:     inmemdb.NewWebhookRepository(db),
		Reminders:    inmemdb.NewReminderRepository(db),
	}
}

func NewPostgresStore(db *sqlx.DB) Store {
	return Store{
		Tx:           database.NewTxRunner(db),
		Classes:      sqlxrepos.NewClassRepository(db),
		Students:     sqlxrepos.NewStudentRepository(db),
		Parents:      sqlxrepos.NewParentRepository(db),
		Scholarships: sqlxrepos.NewScholarshipRepository(db),
		Tariffs:      sqlxrepos.NewTariffRepository(db),
		Payments:     sqlxrepos.NewPaymentRepository(db),
		Invoices:     sqlxrepos.NewInvoiceRepository(db),
		Audit:        sqlxrepos.NewAuditRepository(db),
		Outbox:       sqlxrepos.NewOutboxRepository(db),
		Webhooks:     sqlxrepos.NewWebhookRepository(db),
		Reminders:    sqlxrepos.NewReminderRepository(db),
	}
}
