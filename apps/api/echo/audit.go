package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/chaima229/fraisScolaire-backend-sub000/core/audit"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/reminder"
)

type auditApi struct {
	trail     *audit.Trail
	reminders *reminder.Service
}

func registerAuditAPI(g *echo.Group, jwt echo.MiddlewareFunc, trail *audit.Trail, reminders *reminder.Service) {
	api := auditApi{trail: trail, reminders: reminders}
	admin := rolesMiddleware(adminOnly...)

	g.GET("/audit", api.queryEntries, jwt, admin)

	rg := g.Group("/relances", jwt, admin)
	rg.GET("", api.queryReminders)
	rg.POST("/envoyer", api.sendReminders)
}

func (api *auditApi) queryEntries(ctx echo.Context) error {
	filter := new(audit.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []audit.Entry{})
	}
	filter.From = queryTime(ctx, "from")
	filter.To = queryTime(ctx, "to")
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	entries, err := api.trail.Query(ctx.Request().Context(), *filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying audit log")
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *auditApi) queryReminders(ctx echo.Context) error {
	filter := new(reminder.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []reminder.Reminder{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	reminders, err := api.reminders.Query(ctx.Request().Context(), *filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying reminders")
	}
	if reminders == nil {
		reminders = []reminder.Reminder{}
	}
	return ctx.JSON(http.StatusOK, reminders)
}

// sendReminders runs the scheduled reminder job right away.
func (api *auditApi) sendReminders(ctx echo.Context) error {
	actor, err := contextActor(ctx)
	if err != nil {
		return err
	}
	sent, err := api.reminders.SendDue(ctx.Request().Context(), time.Now(), actor)
	if err != nil {
		return errors.Wrap(err, "sending reminders")
	}
	if sent == nil {
		sent = []reminder.Reminder{}
	}
	return ctx.JSON(http.StatusOK, sent)
}
