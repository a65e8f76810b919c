package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/chaima229/fraisScolaire-backend-sub000/core/scholarship"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/tariff"
)

type feesApi struct {
	tariffs      *tariff.Service
	scholarships *scholarship.Service
	validate     *validator.Validate
}

func registerFeesAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	tariffs *tariff.Service,
	scholarships *scholarship.Service,
	validate *validator.Validate,
) {
	api := feesApi{tariffs: tariffs, scholarships: scholarships, validate: validate}
	access := accessMiddleware(allRoles, adminOnly)

	// tariffs are immutable: no update, delete retires
	tg := g.Group("/tarifs", jwt, access)
	tg.GET("", api.queryTariffs)
	tg.POST("", api.createTariff)
	tg.GET("/:id", api.retrieveTariff)
	tg.DELETE("/:id", api.retireTariff)

	bg := g.Group("/bourses", jwt, access)
	bg.GET("", api.queryScholarships)
	bg.POST("", api.createScholarship)
	bg.GET("/:id", api.retrieveScholarship)
	bg.PUT("/:id", api.updateScholarship)
	bg.DELETE("/:id", api.destroyScholarship)
}

// Tariffs

func (api *feesApi) createTariff(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	var data tariff.NewTariff
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTariff")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	t, err := api.tariffs.Create(ctx.Request().Context(), data, actor)
	if err != nil {
		return errors.Wrap(err, "creating tariff")
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api *feesApi) queryTariffs(ctx echo.Context) error {
	filter := new(tariff.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []tariff.Tariff{})
	}
	filter.Active = queryBool(ctx, "actif")
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	tariffs, err := api.tariffs.Query(ctx.Request().Context(), *filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying tariffs")
	}
	if tariffs == nil {
		tariffs = []tariff.Tariff{}
	}
	return ctx.JSON(http.StatusOK, tariffs)
}

func (api *feesApi) retrieveTariff(ctx echo.Context) error {
	t, err := api.tariffs.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding tariff by ID")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *feesApi) retireTariff(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	t, err := api.tariffs.Retire(ctx.Request().Context(), ctx.Param("id"), actor)
	if err != nil {
		return errors.Wrap(err, "retiring tariff")
	}
	return ctx.JSON(http.StatusOK, t)
}

// Scholarships

func (api *feesApi) createScholarship(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	var data scholarship.NewScholarship
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewScholarship")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	s, err := api.scholarships.Create(ctx.Request().Context(), data, actor)
	if err != nil {
		return errors.Wrap(err, "creating scholarship")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *feesApi) queryScholarships(ctx echo.Context) error {
	filter := new(scholarship.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []scholarship.Scholarship{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	scholarships, err := api.scholarships.Query(ctx.Request().Context(), *filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying scholarships")
	}
	if scholarships == nil {
		scholarships = []scholarship.Scholarship{}
	}
	return ctx.JSON(http.StatusOK, scholarships)
}

func (api *feesApi) retrieveScholarship(ctx echo.Context) error {
	s, err := api.scholarships.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding scholarship by ID")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *feesApi) updateScholarship(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	var data scholarship.UpdateScholarship
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateScholarship")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	s, err := api.scholarships.Update(ctx.Request().Context(), ctx.Param("id"), data, actor)
	if err != nil {
		return errors.Wrap(err, "updating scholarship")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *feesApi) destroyScholarship(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	if err = api.scholarships.Delete(ctx.Request().Context(), ctx.Param("id"), actor); err != nil {
		return errors.Wrap(err, "deleting scholarship")
	}
	return ctx.NoContent(http.StatusNoContent)
}
