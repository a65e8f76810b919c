package reminder

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/audit"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/outbox"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/payment"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/school"
)

// Balances computes the situation of a student.
type Balances interface {
	BalanceOf(ctx context.Context, student school.Student) (payment.Balance, error)
}

type Service struct {
	repo     Repository
	students school.StudentRepository
	parents  school.ParentRepository
	balances Balances
	mailer   core.EmailService
	tx       core.TxRunner
	trail    *audit.Trail
	logger   core.Logger
	interval time.Duration
}

func NewService(
	repo Repository,
	students school.StudentRepository,
	parents school.ParentRepository,
	balances Balances,
	mailer core.EmailService,
	tx core.TxRunner,
	trail *audit.Trail,
	logger core.Logger,
	interval time.Duration,
) *Service {
	return &Service{
		repo:     repo,
		students: students,
		parents:  parents,
		balances: balances,
		mailer:   mailer,
		tx:       tx,
		trail:    trail,
		logger:   logger,
		interval: interval,
	}
}

// SendDue mails a reminder to the parents of every student with an outstanding balance,
// skipping parents reminded less than `interval` ago. It returns the reminders sent.
func (svc *Service) SendDue(ctx context.Context, now time.Time, actor core.Actor) ([]Reminder, error) {
	students, err := svc.students.QueryStudents(ctx, school.StudentFilter{})
	if err != nil {
		return nil, errors.Wrap(err, "querying students")
	}

	sent := make([]Reminder, 0)
	messages := make([]*core.EmailMessage, 0)
	for _, student := range students {
		if err = ctx.Err(); err != nil {
			return sent, err
		}

		balance, err := svc.balances.BalanceOf(ctx, student)
		if err != nil {
			svc.logger.Warn("reminder: computing balance of student "+student.ID, err)
			continue
		}
		if !balance.Remaining.GreaterThan(core.Epsilon) || len(student.ParentIDs) == 0 {
			continue
		}
		parents, err := svc.parents.GetParentsByIDs(ctx, student.ParentIDs...)
		if err != nil {
			return sent, errors.Wrap(err, "finding parents")
		}

		for _, parent := range parents {
			if parent.Email == "" {
				continue
			}
			last, err := svc.repo.LastSentAt(ctx, student.ID, parent.ID)
			if err != nil {
				return sent, errors.Wrap(err, "finding last reminder")
			}
			if !last.IsZero() && now.Sub(last) < svc.interval {
				continue
			}

			r, err := svc.record(ctx, student, parent, balance, now, actor)
			if err != nil {
				return sent, err
			}
			sent = append(sent, r)
			messages = append(messages, newMessage(student, parent, balance))
		}
	}

	if len(messages) > 0 {
		svc.mailer.SendMessages(messages...)
		svc.logger.Info(fmt.Sprintf("reminder: %d payment reminders sent", len(messages)))
	}
	return sent, nil
}

func (svc *Service) record(
	ctx context.Context,
	student school.Student,
	parent school.Parent,
	balance payment.Balance,
	now time.Time,
	actor core.Actor,
) (Reminder, error) {
	r := Reminder{
		ID:           uuid.NewString(),
		StudentID:    student.ID,
		ParentID:     parent.ID,
		Email:        parent.Email,
		Remaining:    balance.Remaining,
		AcademicYear: balance.AcademicYear,
		SentAt:       now.UTC(),
	}
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if r, err = svc.repo.CreateReminder(ctx, r, exec); err != nil {
			return errors.Wrap(err, "creating reminder")
		}
		return svc.trail.Record(ctx, audit.Activity{
			Actor:      actor,
			Action:     audit.ActionRemind,
			EntityType: EntityType,
			EntityID:   r.ID,
			After:      r,
			Event:      outbox.ReminderSent,
		}, exec)
	})
	return r, err
}

func newMessage(student school.Student, parent school.Parent, balance payment.Balance) *core.EmailMessage {
	return &core.EmailMessage{
		To:           []mail.Address{{Name: parent.Name, Address: parent.Email}},
		Subject:      "Rappel de paiement - " + student.FullName(),
		TemplateName: TemplateName,
		TemplateData: MailData{
			ParentName:   parent.Name,
			StudentName:  student.FullName(),
			AcademicYear: balance.AcademicYear,
			Due:          balance.Due.StringFixed(2),
			Paid:         balance.Paid.StringFixed(2),
			Remaining:    balance.Remaining.StringFixed(2),
		},
	}
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, orderings ...core.DBOrdering) ([]Reminder, error) {
	return svc.repo.QueryReminders(ctx, filter, core.FilterOrderings(orderings, OrderingFields...)...)
}
