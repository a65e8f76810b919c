package shared

import (
	"github.com/bwmarrin/snowflake"

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
	Deps struct {
		Conf    *core.Config
		Logger  core.Logger
		Store   Store
		Locker  core.Locker
		Mailer  core.EmailService
		Sender  webhook.Sender
		Numbers *snowflake.Node
	}

	Services struct {
		Trail        *audit.Trail
		School       *school.Service
		Scholarships *scholarship.Service
		Tariffs      *tariff.Service
		Invoices     *invoice.Service
		Ledger       *payment.Ledger
		Webhooks     *webhook.Service
		Reminders    *reminder.Service
		Outbox       *outbox.Worker
	}
)

// NewServices builds every domain service on top of `deps.Store`.
func NewServices(deps Deps) *Services {
	st := deps.Store
	trail := audit.NewTrail(st.Audit, st.Outbox)

	tariffs := tariff.NewService(st.Tariffs, st.Classes, st.Tx, trail, deps.Logger, tariff.DefaultsFromConfig(deps.Conf))
	invoices := invoice.NewService(st.Invoices, st.Payments, st.Students, st.Tx, trail, deps.Numbers)
	ledger := payment.NewLedger(payment.Deps{
		Repo:           st.Payments,
		Students:       st.Students,
		Scholarships:   st.Scholarships,
		Tariffs:        tariffs,
		Invoices:       invoices,
		Locker:         deps.Locker,
		Tx:             st.Tx,
		Trail:          trail,
		Logger:         deps.Logger,
		YearStartMonth: deps.Conf.Fees.YearStartMonth,
	})
	webhooks := webhook.NewService(st.Webhooks, st.Tx, trail, deps.Sender, deps.Locker, deps.Logger, deps.Conf.Webhook.InboundSecret)

	return &Services{
		Trail:        trail,
		School:       school.NewService(st.Classes, st.Students, st.Parents, st.Scholarships, st.Tx, trail, st.Payments, st.Invoices),
		Scholarships: scholarship.NewService(st.Scholarships, st.Students, st.Tx, trail),
		Tariffs:      tariffs,
		Invoices:     invoices,
		Ledger:       ledger,
		Webhooks:     webhooks,
		Reminders: reminder.NewService(
			st.Reminders, st.Students, st.Parents, ledger, deps.Mailer, st.Tx, trail, deps.Logger, deps.Conf.Fees.ReminderInterval,
		),
		Outbox: outbox.NewWorker(st.Outbox, webhooks, deps.Logger, deps.Conf.Scheduler.OutboxBatch),
	}
}
