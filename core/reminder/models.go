package reminder

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
)

const (
	EntityType   = "reminder"
	TemplateName = "payment_reminder"
)

type (
	// Reminder is a payment reminder mailed to a parent.
	Reminder struct {
		ID           string          `json:"id"`
		StudentID    string          `json:"etudiant_id"`
		ParentID     string          `json:"parent_id"`
		Email        string          `json:"email"`
		Remaining    decimal.Decimal `json:"montant_restant"`
		AcademicYear string          `json:"annee_scolaire"`
		SentAt       time.Time       `json:"envoye_le"`
	}

	Repository interface {
		CreateReminder(ctx context.Context, r Reminder, exec ...core.DBExecutor) (Reminder, error)
		QueryReminders(ctx context.Context, filter QueryFilter, orderings ...core.DBOrdering) ([]Reminder, error)
		// LastSentAt returns when the parent was last reminded about the student, zero if never.
		LastSentAt(ctx context.Context, studentID, parentID string) (time.Time, error)
	}

	QueryFilter struct {
		StudentID string `query:"etudiant_id"`
		ParentID  string `query:"parent_id"`
	}

	// MailData is rendered by the payment reminder templates.
	MailData struct {
		ParentName   string
		StudentName  string
		AcademicYear string
		Due          string
		Paid         string
		Remaining    string
	}
)

var OrderingFields = []string{"envoye_le"}

func (qf *QueryFilter) Clean() {
	qf.StudentID = core.CleanString(qf.StudentID)
	qf.ParentID = core.CleanString(qf.ParentID)
}

func (qf QueryFilter) Match(r Reminder) bool {
	return (qf.StudentID == "" || r.StudentID == qf.StudentID) &&
		(qf.ParentID == "" || r.ParentID == qf.ParentID)
}
