package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/bursar/core/audit"
	"github.com/trezcool/bursar/core/user"
)

type auditApi struct {
	svc *audit.Service
}

func registerAuditAPI(g *echo.Group, svc *audit.Service) {
	api := auditApi{svc: svc}
	g.GET("", api.query, rolesMiddleware(user.AuditorRoles...))
}

func (api *auditApi) query(ctx echo.Context) error {
	filter := new(audit.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []audit.AuditLog{})
	}
	filter.Clean()

	logs, err := api.svc.Query(ctx.Request().Context(), *filter)
	if err != nil {
		return errors.Wrap(err, "querying audit logs")
	}
	if logs == nil {
		logs = []audit.AuditLog{}
	}
	return ctx.JSON(http.StatusOK, logs)
}
