package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
)

var (
	allRoles    = core.AllRoles
	adminOnly   = []string{core.RoleAdmin}
	accounting  = []string{core.RoleAdmin, core.RoleAccountant}
	secretariat = []string{core.RoleAdmin, core.RoleSecretary}
)

// rolesMiddleware lets the request through when the token holds one of `roles`.
func rolesMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if _, err := getContextClaims(ctx); err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// accessMiddleware gates a resource group: safe methods need one of `read`, the others one of `write`.
func accessMiddleware(read, write []string) echo.MiddlewareFunc {
	readMw, writeMw := rolesMiddleware(read...), rolesMiddleware(write...)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		readNext, writeNext := readMw(next), writeMw(next)
		return func(ctx echo.Context) error {
			switch ctx.Request().Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				return readNext(ctx)
			default:
				return writeNext(ctx)
			}
		}
	}
}
