package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/outbox"
)

var nowFunc = time.Now // mockable

// Activity describes a state change to record.
// When Event is set an outbox event is enqueued with Payload (or After when Payload is nil).
type Activity struct {
	Actor      core.Actor
	Action     string
	EntityType string
	EntityID   string
	Details    map[string]interface{}
	Before     interface{}
	After      interface{}
	Event      string
	Payload    interface{}
}

// Trail funnels every state change of the system into the audit log and the outbox.
type Trail struct {
	repo   Repository
	outbox outbox.Repository
}

func NewTrail(repo Repository, outboxRepo outbox.Repository) *Trail {
	return &Trail{repo: repo, outbox: outboxRepo}
}

// Record appends the audit entry and enqueues the event using `exec`,
// so both belong to the caller's transaction.
func (t *Trail) Record(ctx context.Context, act Activity, exec ...core.DBExecutor) error {
	details := make(map[string]interface{}, len(act.Details)+1)
	for k, v := range act.Details {
		details[k] = v
	}
	if act.Before != nil && act.After != nil {
		diff, err := Diff(act.Before, act.After)
		if err != nil {
			return errors.Wrap(err, "diffing states")
		}
		details["diff"] = diff
	}

	var raw json.RawMessage
	if len(details) > 0 {
		var err error
		if raw, err = json.Marshal(details); err != nil {
			return errors.Wrap(err, "marshalling details")
		}
	}

	entry := Entry{
		ID:         uuid.NewString(),
		UserID:     act.Actor.ID,
		Action:     act.Action,
		EntityType: act.EntityType,
		EntityID:   act.EntityID,
		Timestamp:  nowFunc().UTC(),
		Details:    raw,
	}
	if err := t.repo.Append(ctx, entry, exec...); err != nil {
		return errors.Wrap(err, "appending audit entry")
	}

	if act.Event == "" {
		return nil
	}
	payload := act.Payload
	if payload == nil {
		payload = act.After
	}
	evt, err := outbox.NewEvent(act.Event, act.EntityType, act.EntityID, act.Actor.ID, payload)
	if err != nil {
		return err
	}
	return errors.Wrap(t.outbox.Enqueue(ctx, evt, exec...), "enqueueing event")
}

func (t *Trail) Query(ctx context.Context, filter QueryFilter, orderings ...core.DBOrdering) ([]Entry, error) {
	return t.repo.Query(ctx, filter, core.FilterOrderings(orderings, OrderingFields...)...)
}

// Diff returns a unified diff of the JSON representations of `before` and `after`.
func Diff(before, after interface{}) (string, error) {
	a, err := json.MarshalIndent(before, "", "  ")
	if err != nil {
		return "", err
	}
	b, err := json.MarshalIndent(after, "", "  ")
	if err != nil {
		return "", err
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(a)),
		B:        difflib.SplitLines(string(b)),
		FromFile: "before",
		ToFile:   "after",
		Context:  1,
	})
}
