package echoapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/payment"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/webhook"
)

const inboundBodyLimit = "256K"

type webhookApi struct {
	svc             *webhook.Service
	ledger          *payment.Ledger
	validate        *validator.Validate
	signatureHeader string
}

func registerWebhookAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc *webhook.Service,
	ledger *payment.Ledger,
	validate *validator.Validate,
	signatureHeader string,
) {
	if signatureHeader == "" {
		signatureHeader = "X-Webhook-Signature"
	}
	api := webhookApi{svc: svc, ledger: ledger, validate: validate, signatureHeader: signatureHeader}

	// un-authed endpoint: the body signature authenticates the caller
	g.POST("/webhooks/recepteur", api.receive, middleware.BodyLimit(inboundBodyLimit))

	wg := g.Group("/webhooks", jwt, accessMiddleware(adminOnly, adminOnly))
	wg.GET("", api.query)
	wg.POST("", api.create)
	wg.GET("/:id", api.retrieve)
	wg.PUT("/:id", api.update)
	wg.DELETE("/:id", api.destroy)
}

func (api *webhookApi) create(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	var data webhook.NewSubscription
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubscription")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	sub, err := api.svc.Create(ctx.Request().Context(), data, actor)
	if err != nil {
		return errors.Wrap(err, "creating subscription")
	}
	return ctx.JSON(http.StatusCreated, sub) // the only response carrying the secret
}

func (api *webhookApi) query(ctx echo.Context) error {
	filter := webhook.QueryFilter{
		Active: queryBool(ctx, "actif"),
		Event:  core.CleanString(ctx.QueryParam("event"), true /* lower */),
	}
	subs, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying subscriptions")
	}
	if subs == nil {
		subs = []webhook.Subscription{}
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (api *webhookApi) retrieve(ctx echo.Context) error {
	sub, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding subscription by ID")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *webhookApi) update(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	var data webhook.UpdateSubscription
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSubscription")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	sub, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data, actor)
	if err != nil {
		return errors.Wrap(err, "updating subscription")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *webhookApi) destroy(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), ctx.Param("id"), actor); err != nil {
		return errors.Wrap(err, "deleting subscription")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// receive verifies the signature of the raw body before anything else is done with it.
func (api *webhookApi) receive(ctx echo.Context) error {
	body, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return errors.Wrap(err, "reading body")
	}
	if err = api.svc.VerifyInbound(body, ctx.Request().Header.Get(api.signatureHeader)); err != nil {
		return err
	}

	var evt webhook.InboundEvent
	if err = json.Unmarshal(body, &evt); err != nil {
		return core.NewValidationError(errors.New("malformed event body"))
	}
	if err = api.validate.Struct(&evt); err != nil {
		return err
	}

	var created *payment.Payment
	err = api.svc.HandleInbound(ctx.Request().Context(), evt, func(c context.Context) error {
		if evt.Event != webhook.InboundPaymentReceived {
			return nil
		}
		var data payment.NewPayment
		if err := json.Unmarshal(evt.Data, &data); err != nil {
			return core.NewValidationError(errors.New("malformed payment data"))
		}
		if err := data.Validate(api.validate); err != nil {
			return err
		}
		p, err := api.ledger.Record(c, data, core.WebhookActor)
		if err != nil {
			return errors.Wrap(err, "recording payment")
		}
		created = &p
		return nil
	})
	switch {
	case err == webhook.ErrDuplicateInbound:
		return ctx.JSON(http.StatusOK, echo.Map{"status": "duplicate"})
	case err != nil:
		return err
	case created != nil:
		return ctx.JSON(http.StatusCreated, NewPaymentResponse(*created))
	}
	return ctx.JSON(http.StatusAccepted, echo.Map{"status": "accepted"})
}
