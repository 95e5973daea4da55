package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/bursar/core"
)

const (
	contextUserKey   = "user"
	contextObjectKey = "object"
)

// principalMiddleware moves the JWT claims into the request context, where the services read them.
func principalMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context claims")
		}
		p := claims.Principal()
		if p.UserID == 0 {
			return errUnauthorized
		}
		req := ctx.Request()
		ctx.SetRequest(req.WithContext(core.ContextWithPrincipal(req.Context(), p)))
		return next(ctx)
	}
}

// rolesMiddleware lets through principals holding any of roles.
func rolesMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			p, ok := core.PrincipalFromContext(ctx.Request().Context())
			if !ok {
				return errUnauthorized
			}
			if p.HasAnyRole(roles...) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}
