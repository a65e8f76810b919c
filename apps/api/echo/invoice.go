package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/chaima229/fraisScolaire-backend-sub000/core/invoice"
)

type invoiceApi struct {
	svc      *invoice.Service
	validate *validator.Validate
}

func registerInvoiceAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *invoice.Service, validate *validator.Validate) {
	api := invoiceApi{svc: svc, validate: validate}

	fg := g.Group("/factures", jwt, accessMiddleware(accounting, accounting))
	fg.GET("", api.query)
	fg.POST("", api.create)
	fg.GET("/:id", api.retrieve)
	fg.POST("/:id/emettre", api.issue)
	fg.POST("/:id/annuler", api.cancel)
	fg.POST("/:id/rectifier", api.correct)
}

func (api *invoiceApi) create(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	var data invoice.NewInvoice
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewInvoice")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	inv, err := api.svc.Create(ctx.Request().Context(), data, actor)
	if err != nil {
		return errors.Wrap(err, "creating invoice")
	}
	return ctx.JSON(http.StatusCreated, inv)
}

func (api *invoiceApi) query(ctx echo.Context) error {
	filter := new(invoice.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []invoice.Invoice{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	invoices, err := api.svc.Query(ctx.Request().Context(), *filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying invoices")
	}
	if invoices == nil {
		invoices = []invoice.Invoice{}
	}
	return ctx.JSON(http.StatusOK, invoices)
}

func (api *invoiceApi) retrieve(ctx echo.Context) error {
	inv, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding invoice by ID")
	}
	return ctx.JSON(http.StatusOK, inv)
}

func (api *invoiceApi) issue(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	inv, err := api.svc.Issue(ctx.Request().Context(), ctx.Param("id"), actor)
	if err != nil {
		return errors.Wrap(err, "issuing invoice")
	}
	return ctx.JSON(http.StatusOK, inv)
}

func (api *invoiceApi) cancel(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	inv, err := api.svc.Cancel(ctx.Request().Context(), ctx.Param("id"), actor)
	if err != nil {
		return errors.Wrap(err, "cancelling invoice")
	}
	return ctx.JSON(http.StatusOK, inv)
}

func (api *invoiceApi) correct(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	var data invoice.CorrectInvoice
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CorrectInvoice")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	inv, err := api.svc.Correct(ctx.Request().Context(), ctx.Param("id"), data, actor)
	if err != nil {
		return errors.Wrap(err, "correcting invoice")
	}
	return ctx.JSON(http.StatusCreated, inv)
}
