package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/bursar/core/academicyear"
	"github.com/trezcool/bursar/core/user"
)

type academicYearApi struct {
	svc      *academicyear.Service
	validate *validator.Validate
}

func registerAcademicYearAPI(g *echo.Group, svc *academicyear.Service, validate *validator.Validate) {
	api := academicYearApi{svc: svc, validate: validate}
	read, write := rolesMiddleware(user.ReaderRoles...), rolesMiddleware(user.WriterRoles...)

	g.GET("", api.list, read)
	g.POST("", api.create, write)
	g.GET("/current", api.current, read)
	g.GET("/:id", api.retrieve, read)
	g.PUT("/:id", api.update, write)
	g.POST("/:id/current", api.setCurrent, write)
}

func (api *academicYearApi) create(ctx echo.Context) error {
	var data academicyear.NewAcademicYear
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAcademicYear")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ay, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating academic year")
	}
	return ctx.JSON(http.StatusCreated, ay)
}

func (api *academicYearApi) list(ctx echo.Context) error {
	years, err := api.svc.List(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing academic years")
	}
	if years == nil {
		years = []academicyear.AcademicYear{}
	}
	return ctx.JSON(http.StatusOK, years)
}

func (api *academicYearApi) current(ctx echo.Context) error {
	ay, err := api.svc.Current(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "getting current academic year")
	}
	return ctx.JSON(http.StatusOK, ay)
}

func (api *academicYearApi) retrieve(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	ay, err := api.svc.Get(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting academic year")
	}
	return ctx.JSON(http.StatusOK, ay)
}

func (api *academicYearApi) update(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	ay, err := api.svc.Get(reqCtx, id)
	if err != nil {
		return errors.Wrap(err, "getting academic year")
	}

	var data academicyear.UpdateAcademicYear
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAcademicYear")
	}
	if err := data.Validate(api.validate, ay); err != nil {
		return err
	}

	ay, err = api.svc.Update(reqCtx, ay, data)
	if err != nil {
		return errors.Wrap(err, "updating academic year")
	}
	return ctx.JSON(http.StatusOK, ay)
}

func (api *academicYearApi) setCurrent(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	ay, err := api.svc.SetCurrent(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "setting current academic year")
	}
	return ctx.JSON(http.StatusOK, ay)
}
