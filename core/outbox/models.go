package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
)

// Statuses
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
	StatusFailed     = "failed"
)

type (
	// Event is the persisted intent to notify subscribers of a state change.
	// It is written in the same transaction as the change itself.
	Event struct {
		ID         string          `json:"id"`
		Type       string          `json:"type"`
		EntityType string          `json:"entity_type"`
		EntityID   string          `json:"entity_id"`
		ActorID    string          `json:"actor_id"`
		Payload    json.RawMessage `json:"payload"`
		Status     string          `json:"status"`
		Attempts   int             `json:"attempts"`
		LastError  string          `json:"last_error,omitempty"`
		CreatedAt  time.Time       `json:"created_at"`
		UpdatedAt  time.Time       `json:"updated_at"`
	}

	Repository interface {
		Enqueue(ctx context.Context, evt Event, exec ...core.DBExecutor) error
		// ClaimPending moves up to `limit` pending events, oldest first, to StatusProcessing and returns them.
		ClaimPending(ctx context.Context, limit int) ([]Event, error)
		MarkProcessed(ctx context.Context, id string) error
		MarkFailed(ctx context.Context, id, reason string) error
		// ReleaseStale puts events stuck in StatusProcessing since before `before` back to StatusPending.
		ReleaseStale(ctx context.Context, before time.Time) (int, error)
		Query(ctx context.Context, status string) ([]Event, error)
	}

	// Notifier delivers an event to whoever is interested in it.
	Notifier interface {
		Notify(ctx context.Context, evt Event) error
	}
)

func NewEvent(typ, entityType, entityID, actorID string, data interface{}) (Event, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return Event{}, errors.Wrap(err, "marshalling event payload")
	}
	now := time.Now().UTC()
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		EntityType: entityType,
		EntityID:   entityID,
		ActorID:    actorID,
		Payload:    payload,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}
