package echoapi

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/payment"
)

type paymentApi struct {
	ledger   *payment.Ledger
	validate *validator.Validate
}

func registerPaymentAPI(g *echo.Group, jwt echo.MiddlewareFunc, ledger *payment.Ledger, validate *validator.Validate) {
	api := paymentApi{ledger: ledger, validate: validate}

	pg := g.Group("/paiements", jwt, accessMiddleware(accounting, accounting))
	pg.GET("", api.query)
	pg.POST("", api.create)
	pg.GET("/:id", api.retrieve)
	pg.PUT("/:id", api.update)
	pg.DELETE("/:id", api.destroy)

	pg.POST("/:id/litige", api.openCase(ledger.OpenDispute))
	pg.POST("/:id/litige/resolution", api.closeCase(ledger.ResolveDispute))
	pg.POST("/:id/remboursement", api.openCase(ledger.RequestRefund))
	pg.POST("/:id/remboursement/resolution", api.closeCase(ledger.ResolveRefund))
}

func (api *paymentApi) create(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	var data payment.NewPayment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPayment")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	p, err := api.ledger.Record(ctx.Request().Context(), data, actor)
	if err != nil {
		return errors.Wrap(err, "recording payment")
	}
	return ctx.JSON(http.StatusCreated, NewPaymentResponse(p))
}

func (api *paymentApi) query(ctx echo.Context) error {
	filter := new(payment.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []payment.Payment{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	payments, err := api.ledger.Query(ctx.Request().Context(), *filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying payments")
	}
	if payments == nil {
		payments = []payment.Payment{}
	}
	return ctx.JSON(http.StatusOK, payments)
}

func (api *paymentApi) retrieve(ctx echo.Context) error {
	p, err := api.ledger.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding payment by ID")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *paymentApi) update(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	var data payment.UpdatePayment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdatePayment")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	p, err := api.ledger.Update(ctx.Request().Context(), ctx.Param("id"), data, actor)
	if err != nil {
		return errors.Wrap(err, "updating payment")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *paymentApi) destroy(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	if err = api.ledger.Delete(ctx.Request().Context(), ctx.Param("id"), actor); err != nil {
		return errors.Wrap(err, "deleting payment")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type (
	openCaseFunc  func(ctx context.Context, id string, oc payment.OpenCase, actor core.Actor) (payment.Payment, error)
	closeCaseFunc func(ctx context.Context, id string, cc payment.CloseCase, actor core.Actor) (payment.Payment, error)
)

// openCase serves the dispute and refund requests.
func (api *paymentApi) openCase(open openCaseFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		actor, err := contextActor(ctx)
		if err != nil {
			return err
		}
		var data payment.OpenCase
		if err = ctx.Bind(&data); err != nil {
			return errors.Wrap(err, "binding to OpenCase")
		}
		if err = data.Validate(api.validate); err != nil {
			return err
		}

		p, err := open(ctx.Request().Context(), ctx.Param("id"), data, actor)
		if err != nil {
			return errors.Wrap(err, "opening case")
		}
		return ctx.JSON(http.StatusOK, p)
	}
}

// closeCase serves the dispute and refund resolutions.
func (api *paymentApi) closeCase(closeFn closeCaseFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		actor, err := contextActor(ctx)
		if err != nil {
			return err
		}
		var data payment.CloseCase
		if err = ctx.Bind(&data); err != nil {
			return errors.Wrap(err, "binding to CloseCase")
		}
		if err = data.Validate(api.validate); err != nil {
			return err
		}

		p, err := closeFn(ctx.Request().Context(), ctx.Param("id"), data, actor)
		if err != nil {
			return errors.Wrap(err, "closing case")
		}
		return ctx.JSON(http.StatusOK, p)
	}
}

type PaymentResponse struct {
	Payment   payment.Payment `json:"paiement"`
	InvoiceID *string         `json:"facture_id"`
}

// NewPaymentResponse reports the invoice the payment ended up linked to, if any.
func NewPaymentResponse(p payment.Payment) PaymentResponse {
	res := PaymentResponse{Payment: p}
	if len(p.InvoiceIDs) > 0 {
		id := p.InvoiceIDs[0]
		res.InvoiceID = &id
	}
	return res
}
