package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
)

// Actions
const (
	ActionCreate  = "create"
	ActionUpdate  = "update"
	ActionDelete  = "delete"
	ActionDispute = "dispute"
	ActionRefund  = "refund"
	ActionRetire  = "retire"
	ActionCancel  = "cancel"
	ActionCorrect = "correct"
	ActionIssue   = "issue"
	ActionReceive = "receive"
	ActionRemind  = "remind"
)

type (
	// Entry is an immutable record of a state-changing action.
	Entry struct {
		ID         string          `json:"id"`
		UserID     string          `json:"user_id"`
		Action     string          `json:"action"`
		EntityType string          `json:"entity_type"`
		EntityID   string          `json:"entity_id"`
		Timestamp  time.Time       `json:"timestamp"`
		Details    json.RawMessage `json:"details,omitempty"`
	}

	// Repository only appends: entries are never updated nor deleted.
	Repository interface {
		Append(ctx context.Context, entry Entry, exec ...core.DBExecutor) error
		Query(ctx context.Context, filter QueryFilter, orderings ...core.DBOrdering) ([]Entry, error)
	}

	QueryFilter struct {
		EntityType string    `query:"entity_type"`
		EntityID   string    `query:"entity_id"`
		UserID     string    `query:"user_id"`
		Action     string    `query:"action"`
		From       time.Time `query:"-"`
		To         time.Time `query:"-"`
	}
)

var OrderingFields = []string{"timestamp", "entity_type", "action"}

func (qf *QueryFilter) Clean() {
	qf.EntityType = core.CleanString(qf.EntityType, true /* lower */)
	qf.EntityID = core.CleanString(qf.EntityID)
	qf.UserID = core.CleanString(qf.UserID)
	qf.Action = core.CleanString(qf.Action, true /* lower */)
}

// Match reports whether `e` satisfies every set field of the filter.
func (qf QueryFilter) Match(e Entry) bool {
	return (qf.EntityType == "" || e.EntityType == qf.EntityType) &&
		(qf.EntityID == "" || e.EntityID == qf.EntityID) &&
		(qf.UserID == "" || e.UserID == qf.UserID) &&
		(qf.Action == "" || e.Action == qf.Action) &&
		(qf.From.IsZero() || !e.Timestamp.Before(qf.From)) &&
		(qf.To.IsZero() || !e.Timestamp.After(qf.To))
}
