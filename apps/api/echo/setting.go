package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/bursar/core/setting"
	"github.com/trezcool/bursar/core/user"
)

type settingApi struct {
	svc      *setting.Service
	validate *validator.Validate
}

func registerSettingAPI(g *echo.Group, svc *setting.Service, validate *validator.Validate) {
	api := settingApi{svc: svc, validate: validate}

	g.GET("", api.list, rolesMiddleware(user.ReaderRoles...))
	g.GET("/:name", api.retrieve, rolesMiddleware(user.ReaderRoles...))
	g.PUT("/:name", api.update, rolesMiddleware(user.RoleAdmin))
}

func (api *settingApi) list(ctx echo.Context) error {
	settings, err := api.svc.List(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing settings")
	}
	return ctx.JSON(http.StatusOK, settings)
}

func (api *settingApi) retrieve(ctx echo.Context) error {
	s, err := api.svc.Setting(ctx.Request().Context(), ctx.Param("name"))
	if err != nil {
		return errors.Wrap(err, "getting setting")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *settingApi) update(ctx echo.Context) error {
	var data setting.UpdateSetting
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSetting")
	}
	data.Name = ctx.Param("name")
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	s, err := api.svc.Set(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "updating setting")
	}
	return ctx.JSON(http.StatusOK, s)
}
