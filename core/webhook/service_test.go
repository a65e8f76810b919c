package webhook_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/audit"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/outbox"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/webhook"
	"github.com/chaima229/fraisScolaire-backend-sub000/testutil"
)

func subscribe(t *testing.T, env *testutil.Env, active bool, events ...string) webhook.Subscription {
	t.Helper()
	sub, err := env.Webhooks.Create(env.Ctx(), webhook.NewSubscription{
		URL:    "https://hooks.test.cd/fees",
		Events: events,
		Active: &active,
	}, testutil.Admin)
	require.NoError(t, err)
	return sub
}

func TestService_Create(t *testing.T) {
	env := testutil.NewEnv(t)

	generated := subscribe(t, env, true, outbox.PaymentCreated)
	assert.Len(t, generated.Secret, 48, "a secret is generated when none is given")
	assert.True(t, generated.Active)

	chosen, err := env.Webhooks.Create(env.Ctx(), webhook.NewSubscription{
		URL:    "https://hooks.test.cd/other",
		Events: []string{outbox.AllEvents},
		Secret: "0123456789abcdef",
	}, testutil.Admin)
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef", chosen.Secret)

	got, err := env.Webhooks.GetByID(env.Ctx(), chosen.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Secret)

	entries, err := env.Trail.Query(env.Ctx(), audit.QueryFilter{EntityType: webhook.EntityType})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	for _, e := range entries {
		assert.NotContains(t, string(e.Details), "0123456789abcdef")
	}
}

func TestService_Notify(t *testing.T) {
	env := testutil.NewEnv(t)

	payments := subscribe(t, env, true, outbox.PaymentCreated)
	everything := subscribe(t, env, true, outbox.AllEvents)
	subscribe(t, env, false, outbox.PaymentCreated)
	subscribe(t, env, true, outbox.InvoiceCreated)
	deleted := subscribe(t, env, true, outbox.PaymentCreated)
	require.NoError(t, env.Webhooks.Delete(env.Ctx(), deleted.ID, testutil.Admin))

	evt, err := outbox.NewEvent(outbox.PaymentCreated, "payment", "p1", testutil.Accountant.ID, map[string]string{"montant": "100"})
	require.NoError(t, err)
	require.NoError(t, env.Webhooks.Notify(env.Ctx(), evt))

	deliveries := env.Sender.Deliveries()
	require.Len(t, deliveries, 2)
	assert.ElementsMatch(t,
		[]string{payments.ID, everything.ID},
		[]string{deliveries[0].SubscriptionID, deliveries[1].SubscriptionID},
	)

	var body webhook.Payload
	require.NoError(t, json.Unmarshal(deliveries[0].Body, &body))
	assert.Equal(t, evt.ID, body.ID)
	assert.Equal(t, outbox.PaymentCreated, body.Event)
	assert.Equal(t, "p1", body.EntityID)
	assert.JSONEq(t, `{"montant":"100"}`, string(body.Data))

	t.Run("failed deliveries are reported", func(t *testing.T) {
		env.Sender.Err = errors.New("503 Service Unavailable")
		err := env.Webhooks.Notify(env.Ctx(), evt)
		if assert.Error(t, err) {
			assert.Contains(t, err.Error(), "2/2 deliveries failed")
			assert.Contains(t, err.Error(), "503 Service Unavailable")
		}
		assert.Len(t, env.Sender.Deliveries(), 4, "every subscription is attempted")
	})
}

func TestService_Update(t *testing.T) {
	env := testutil.NewEnv(t)
	sub := subscribe(t, env, true, outbox.PaymentCreated)

	inactive := false
	updated, err := env.Webhooks.Update(env.Ctx(), sub.ID, webhook.UpdateSubscription{
		Events: []string{outbox.InvoiceCreated},
		Active: &inactive,
	}, testutil.Admin)
	require.NoError(t, err)
	assert.Equal(t, sub.URL, updated.URL)
	assert.Equal(t, []string{outbox.InvoiceCreated}, updated.Events)
	assert.False(t, updated.Active)
	assert.Empty(t, updated.Secret)

	_, err = env.Webhooks.Update(env.Ctx(), "nope", webhook.UpdateSubscription{}, testutil.Admin)
	assert.Equal(t, webhook.ErrNotFound, err)
}

func TestService_RecordInbound(t *testing.T) {
	env := testutil.NewEnv(t)

	require.NoError(t, env.Webhooks.RecordInbound(env.Ctx(), webhook.InboundEvent{
		ID:    "evt-1",
		Event: "bank.statement",
		Data:  json.RawMessage(`{"ref":"X"}`),
	}))

	entries, err := env.Trail.Query(env.Ctx(), audit.QueryFilter{Action: audit.ActionReceive})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "webhook", entries[0].UserID)
	assert.Equal(t, "evt-1", entries[0].EntityID)
	assert.JSONEq(t, `{"event":"bank.statement","data":{"ref":"X"}}`, string(entries[0].Details))
}

func TestService_HandleInbound(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := env.Ctx()

	var calls int
	handle := func(context.Context) error {
		calls++
		return nil
	}
	evt := webhook.InboundEvent{ID: "evt-1", Event: "bank.statement"}

	require.NoError(t, env.Webhooks.HandleInbound(ctx, evt, handle))
	err := env.Webhooks.HandleInbound(ctx, evt, handle)
	assert.Equal(t, webhook.ErrDuplicateInbound, err)
	assert.True(t, core.IsConflict(err))
	assert.Equal(t, 1, calls)

	t.Run("failed events are not remembered", func(t *testing.T) {
		failing := webhook.InboundEvent{ID: "evt-2", Event: "bank.statement"}
		boom := errors.New("boom")
		assert.Equal(t, boom, env.Webhooks.HandleInbound(ctx, failing, func(context.Context) error { return boom }))
		require.NoError(t, env.Webhooks.HandleInbound(ctx, failing, handle))
		assert.Equal(t, 2, calls)
	})

	t.Run("events without id", func(t *testing.T) {
		anonymous := webhook.InboundEvent{Event: "bank.statement"}
		require.NoError(t, env.Webhooks.HandleInbound(ctx, anonymous, handle))
		require.NoError(t, env.Webhooks.HandleInbound(ctx, anonymous, handle))
		assert.Equal(t, 4, calls)
	})
}
