package webhook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/samber/lo"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/outbox"
)

const EntityType = "webhook"

// InboundPaymentReceived is the inbound event that records a payment.
const InboundPaymentReceived = "payment.received"

type (
	Subscription struct {
		ID        string     `json:"id"`
		URL       string     `json:"url"`
		Events    []string   `json:"events"`
		Secret    string     `json:"secret,omitempty"` // only returned on creation
		Active    bool       `json:"actif"`
		DeletedAt *time.Time `json:"deleted_at,omitempty"`
		CreatedAt time.Time  `json:"created_at"`
		UpdatedAt time.Time  `json:"updated_at"`
	}

	// Payload is the JSON body POSTed to subscribers.
	Payload struct {
		ID         string          `json:"id"`
		Event      string          `json:"event"`
		EntityType string          `json:"entity_type"`
		EntityID   string          `json:"entity_id"`
		OccurredAt time.Time       `json:"occurred_at"`
		Data       json.RawMessage `json:"data"`
	}

	// Sender delivers a signed body to a subscriber.
	Sender interface {
		Send(ctx context.Context, sub Subscription, eventType string, body []byte) error
	}

	Repository interface {
		CreateSubscription(ctx context.Context, sub Subscription, exec ...core.DBExecutor) (Subscription, error)
		// QuerySubscriptions never returns soft-deleted subscriptions.
		QuerySubscriptions(ctx context.Context, filter QueryFilter) ([]Subscription, error)
		GetSubscriptionByID(ctx context.Context, id string) (Subscription, error)
		UpdateSubscription(ctx context.Context, sub Subscription, exec ...core.DBExecutor) (Subscription, error)
	}

	QueryFilter struct {
		Active *bool  `query:"-"`
		Event  string `query:"event"`
	}
)

// Wants reports whether the subscription should receive events of type `typ`.
func (s Subscription) Wants(typ string) bool {
	return s.Active && s.DeletedAt == nil && (lo.Contains(s.Events, outbox.AllEvents) || lo.Contains(s.Events, typ))
}

func (s Subscription) Redacted() Subscription {
	s.Secret = ""
	return s
}

func (qf QueryFilter) Match(s Subscription) bool {
	if s.DeletedAt != nil {
		return false
	}
	if qf.Active != nil && s.Active != *qf.Active {
		return false
	}
	if qf.Event != "" && !(lo.Contains(s.Events, qf.Event) || lo.Contains(s.Events, outbox.AllEvents)) {
		return false
	}
	return true
}

// NewSubscription contains information needed to create a Subscription.
type NewSubscription struct {
	URL    string   `json:"url" validate:"required,url"`
	Events []string `json:"events" validate:"required,min=1,dive,webhook_event"`
	Secret string   `json:"secret" validate:"omitempty,min=16"`
	Active *bool    `json:"actif"`
}

func (ns *NewSubscription) Clean() {
	ns.URL = core.CleanString(ns.URL)
	ns.Events = lo.Uniq(lo.Map(ns.Events, func(e string, _ int) string { return core.CleanString(e, true /* lower */) }))
}

// UpdateSubscription defines what may be changed on an existing Subscription.
type UpdateSubscription struct {
	URL    string   `json:"url" validate:"omitempty,url"`
	Events []string `json:"events" validate:"omitempty,min=1,dive,webhook_event"`
	Secret string   `json:"secret" validate:"omitempty,min=16"`
	Active *bool    `json:"actif"`
}

func (us *UpdateSubscription) Clean() {
	us.URL = core.CleanString(us.URL)
	if us.Events != nil {
		us.Events = lo.Uniq(lo.Map(us.Events, func(e string, _ int) string { return core.CleanString(e, true /* lower */) }))
	}
}

// InboundEvent is the body expected on the inbound webhook receiver.
type InboundEvent struct {
	ID    string          `json:"id"`
	Event string          `json:"event" validate:"required"`
	Data  json.RawMessage `json:"data"`
}
