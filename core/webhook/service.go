package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/audit"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/outbox"
)

var (
	ErrNotFound = core.NewNotFoundError("webhook subscription")

	// ErrDuplicateInbound is returned for an inbound event whose id was already handled.
	ErrDuplicateInbound = core.NewConflictError("inbound event already received")
)

type Service struct {
	repo          Repository
	tx            core.TxRunner
	trail         *audit.Trail
	sender        Sender
	locker        core.Locker
	logger        core.Logger
	inboundSecret string
}

var _ outbox.Notifier = (*Service)(nil)

func NewService(
	repo Repository,
	tx core.TxRunner,
	trail *audit.Trail,
	sender Sender,
	locker core.Locker,
	logger core.Logger,
	inboundSecret string,
) *Service {
	return &Service{
		repo:          repo,
		tx:            tx,
		trail:         trail,
		sender:        sender,
		locker:        locker,
		logger:        logger,
		inboundSecret: inboundSecret,
	}
}

func (svc *Service) Create(ctx context.Context, ns NewSubscription, actor core.Actor) (Subscription, error) {
	secret := ns.Secret
	if secret == "" {
		var err error
		if secret, err = generateSecret(); err != nil {
			return Subscription{}, errors.Wrap(err, "generating secret")
		}
	}
	active := true
	if ns.Active != nil {
		active = *ns.Active
	}

	now := time.Now().UTC()
	sub := Subscription{
		ID:        uuid.NewString(),
		URL:       ns.URL,
		Events:    ns.Events,
		Secret:    secret,
		Active:    active,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if sub, err = svc.repo.CreateSubscription(ctx, sub, exec); err != nil {
			return errors.Wrap(err, "creating subscription")
		}
		return svc.trail.Record(ctx, audit.Activity{
			Actor:      actor,
			Action:     audit.ActionCreate,
			EntityType: EntityType,
			EntityID:   sub.ID,
			After:      sub.Redacted(),
			Event:      outbox.WebhookCreated,
		}, exec)
	})
	return sub, err
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Subscription, error) {
	subs, err := svc.repo.QuerySubscriptions(ctx, filter)
	if err != nil {
		return nil, err
	}
	for i := range subs {
		subs[i] = subs[i].Redacted()
	}
	return subs, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (Subscription, error) {
	sub, err := svc.repo.GetSubscriptionByID(ctx, id)
	if err != nil {
		return Subscription{}, err
	}
	return sub.Redacted(), nil
}

func (svc *Service) Update(ctx context.Context, id string, us UpdateSubscription, actor core.Actor) (Subscription, error) {
	orig, err := svc.repo.GetSubscriptionByID(ctx, id)
	if err != nil {
		return Subscription{}, err
	}

	sub := orig
	if us.URL != "" {
		sub.URL = us.URL
	}
	if us.Events != nil {
		sub.Events = us.Events
	}
	if us.Secret != "" {
		sub.Secret = us.Secret
	}
	if us.Active != nil {
		sub.Active = *us.Active
	}
	sub.UpdatedAt = time.Now().UTC()

	err = svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		if sub, err = svc.repo.UpdateSubscription(ctx, sub, exec); err != nil {
			return errors.Wrap(err, "updating subscription")
		}
		return svc.trail.Record(ctx, audit.Activity{
			Actor:      actor,
			Action:     audit.ActionUpdate,
			EntityType: EntityType,
			EntityID:   sub.ID,
			Before:     orig.Redacted(),
			After:      sub.Redacted(),
			Event:      outbox.WebhookUpdated,
		}, exec)
	})
	return sub.Redacted(), err
}

// Delete deactivates the subscription and hides it from queries. The row is kept.
func (svc *Service) Delete(ctx context.Context, id string, actor core.Actor) error {
	sub, err := svc.repo.GetSubscriptionByID(ctx, id)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	sub.Active = false
	sub.DeletedAt = &now
	sub.UpdatedAt = now

	return svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		if _, err := svc.repo.UpdateSubscription(ctx, sub, exec); err != nil {
			return errors.Wrap(err, "deleting subscription")
		}
		return svc.trail.Record(ctx, audit.Activity{
			Actor:      actor,
			Action:     audit.ActionDelete,
			EntityType: EntityType,
			EntityID:   sub.ID,
			Event:      outbox.WebhookDeleted,
			Payload:    sub.Redacted(),
		}, exec)
	})
}

// Notify delivers `evt` to every active subscription interested in it.
// Every subscription is attempted; the returned error lists the failed deliveries.
func (svc *Service) Notify(ctx context.Context, evt outbox.Event) error {
	subs, err := svc.repo.QuerySubscriptions(ctx, QueryFilter{Event: evt.Type})
	if err != nil {
		return errors.Wrap(err, "querying subscriptions")
	}

	body, err := json.Marshal(Payload{
		ID:         evt.ID,
		Event:      evt.Type,
		EntityType: evt.EntityType,
		EntityID:   evt.EntityID,
		OccurredAt: evt.CreatedAt,
		Data:       evt.Payload,
	})
	if err != nil {
		return errors.Wrap(err, "marshalling payload")
	}

	var failed []string
	var attempted int
	for _, sub := range subs {
		if !sub.Wants(evt.Type) {
			continue
		}
		attempted++
		if err := svc.sender.Send(ctx, sub, evt.Type, body); err != nil {
			svc.logger.Warn(fmt.Sprintf("webhook: delivering %s to %s", evt.Type, sub.URL), err)
			failed = append(failed, sub.ID+": "+err.Error())
		}
	}
	if len(failed) > 0 {
		return errors.Errorf("%d/%d deliveries failed: %s", len(failed), attempted, strings.Join(failed, "; "))
	}
	return nil
}

// VerifyInbound checks the signature of a body received on the inbound receiver.
func (svc *Service) VerifyInbound(body []byte, signature string) error {
	return Verify(body, svc.inboundSecret, signature)
}

// HandleInbound runs `handle` at most once per event id, then audits the event.
// Events without an id are handled every time.
func (svc *Service) HandleInbound(ctx context.Context, evt InboundEvent, handle func(ctx context.Context) error) error {
	if evt.ID != "" {
		unlock, err := svc.locker.Lock(ctx, "webhook:inbound:"+evt.ID)
		if err != nil {
			return errors.Wrap(err, "locking inbound event")
		}
		defer unlock()

		seen, err := svc.trail.Query(ctx, audit.QueryFilter{EntityType: EntityType, EntityID: evt.ID, Action: audit.ActionReceive})
		if err != nil {
			return errors.Wrap(err, "finding inbound event")
		}
		if len(seen) > 0 {
			return ErrDuplicateInbound
		}
	}

	if err := handle(ctx); err != nil {
		return err
	}
	if err := svc.RecordInbound(ctx, evt); err != nil {
		// the event was handled: a failing audit must not make the sender retry it
		svc.logger.Error("webhook: recording inbound event "+evt.ID, err, core.WebhookActor)
	}
	return nil
}

// RecordInbound audits an inbound event.
func (svc *Service) RecordInbound(ctx context.Context, evt InboundEvent) error {
	return svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		return svc.trail.Record(ctx, audit.Activity{
			Actor:      core.WebhookActor,
			Action:     audit.ActionReceive,
			EntityType: EntityType,
			EntityID:   evt.ID,
			Details:    map[string]interface{}{"event": evt.Event, "data": evt.Data},
			Event:      outbox.WebhookReceived,
			Payload:    evt,
		}, exec)
	})
}
