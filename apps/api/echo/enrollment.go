package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/bursar/core/enrollment"
	"github.com/trezcool/bursar/core/user"
)

type enrollmentApi struct {
	svc      *enrollment.Service
	validate *validator.Validate
}

func registerEnrollmentAPI(g *echo.Group, svc *enrollment.Service, validate *validator.Validate) {
	api := enrollmentApi{svc: svc, validate: validate}
	read, write := rolesMiddleware(user.ReaderRoles...), rolesMiddleware(user.WriterRoles...)

	g.GET("", api.query, read)
	g.POST("", api.create, write)
	g.GET("/:id", api.retrieve, read)
	g.PUT("/:id", api.update, write)
	g.POST("/:id/withdraw", api.withdraw, write)
}

func (api *enrollmentApi) create(ctx echo.Context) error {
	var data enrollment.NewEnrollment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEnrollment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	e, err := api.svc.Enroll(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "enrolling student")
	}
	return ctx.JSON(http.StatusCreated, e)
}

func (api *enrollmentApi) query(ctx echo.Context) error {
	filter := new(enrollment.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []enrollment.Enrollment{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	enrollments, err := api.svc.Query(ctx.Request().Context(), *filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying enrollments")
	}
	if enrollments == nil {
		enrollments = []enrollment.Enrollment{}
	}
	return ctx.JSON(http.StatusOK, enrollments)
}

func (api *enrollmentApi) retrieve(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	e, err := api.svc.Get(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting enrollment")
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *enrollmentApi) update(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	e, err := api.svc.Get(reqCtx, id)
	if err != nil {
		return errors.Wrap(err, "getting enrollment")
	}

	var data enrollment.UpdateEnrollment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateEnrollment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	e, err = api.svc.Update(reqCtx, e, data)
	if err != nil {
		return errors.Wrap(err, "updating enrollment")
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *enrollmentApi) withdraw(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	e, err := api.svc.Withdraw(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "withdrawing enrollment")
	}
	return ctx.JSON(http.StatusOK, e)
}
