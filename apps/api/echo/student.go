package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/bursar/core/academicyear"
	"github.com/trezcool/bursar/core/billing"
	"github.com/trezcool/bursar/core/student"
	"github.com/trezcool/bursar/core/user"
)

type (
	studentApi struct {
		svc      *student.Service
		years    *academicyear.Service
		balances *billing.Service
		validate *validator.Validate
	}

	BalanceResponse struct {
		StudentID      int `json:"student_id"`
		AcademicYearID int `json:"academic_year_id"`
		billing.Balance
	}
)

func registerStudentAPI(g *echo.Group, svc *student.Service, years *academicyear.Service, balances *billing.Service, validate *validator.Validate) {
	api := studentApi{svc: svc, years: years, balances: balances, validate: validate}
	read, write := rolesMiddleware(user.ReaderRoles...), rolesMiddleware(user.WriterRoles...)

	g.GET("", api.query, read)
	g.POST("", api.create, write)
	g.GET("/:id", api.retrieve, read)
	g.PUT("/:id", api.update, write)
	g.GET("/:id/balance", api.balance, read)
}

func (api *studentApi) create(ctx echo.Context) error {
	var data student.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	s, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *studentApi) query(ctx echo.Context) error {
	filter := new(student.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []student.Student{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	students, err := api.svc.Query(ctx.Request().Context(), *filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []student.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *studentApi) retrieve(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	s, err := api.svc.Get(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting student")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *studentApi) update(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	var data student.UpdateStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	s, err := api.svc.Update(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, s)
}

// balance defaults to the current academic year.
func (api *studentApi) balance(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	yearID, err := queryID(ctx, "academic_year_id")
	if err != nil {
		return err
	}

	if _, err := api.svc.Get(reqCtx, id); err != nil {
		return errors.Wrap(err, "getting student")
	}
	var year academicyear.AcademicYear
	if yearID == 0 {
		year, err = api.years.Current(reqCtx)
	} else {
		year, err = api.years.Get(reqCtx, yearID)
	}
	if err != nil {
		return errors.Wrap(err, "getting academic year")
	}

	bal, err := api.balances.Balance(reqCtx, id, year.ID)
	if err != nil {
		return errors.Wrap(err, "computing balance")
	}
	return ctx.JSON(http.StatusOK, BalanceResponse{StudentID: id, AcademicYearID: year.ID, Balance: bal})
}
