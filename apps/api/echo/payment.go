package echoapi

import (
	"bytes"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/bursar/core/billing"
	"github.com/trezcool/bursar/core/payment"
	"github.com/trezcool/bursar/core/user"
	exportsvc "github.com/trezcool/bursar/services/export"
)

type (
	paymentApi struct {
		svc      *payment.Service
		balances *billing.Service
		exporter *exportsvc.LedgerExporter
		validate *validator.Validate
	}

	// RecordPaymentResponse carries the balance recomputed right after the payment was recorded.
	RecordPaymentResponse struct {
		Payment payment.Payment `json:"payment"`
		Balance billing.Balance `json:"balance"`
	}
)

func registerPaymentAPI(
	g *echo.Group,
	svc *payment.Service,
	balances *billing.Service,
	exporter *exportsvc.LedgerExporter,
	validate *validator.Validate,
) {
	api := paymentApi{svc: svc, balances: balances, exporter: exporter, validate: validate}
	read, write := rolesMiddleware(user.ReaderRoles...), rolesMiddleware(user.WriterRoles...)

	g.GET("", api.query, read)
	g.POST("", api.create, write)
	g.GET("/export", api.export, read)
	g.GET("/:id", api.retrieve, read)
	g.PUT("/:id", api.update, write)
}

func (api *paymentApi) create(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	var data payment.NewPayment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPayment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	p, err := api.svc.Record(reqCtx, data)
	if err != nil {
		return errors.Wrap(err, "recording payment")
	}
	bal, err := api.balances.Balance(reqCtx, p.StudentID, p.AcademicYearID)
	if err != nil {
		return errors.Wrap(err, "computing balance")
	}
	return ctx.JSON(http.StatusCreated, RecordPaymentResponse{Payment: p, Balance: bal})
}

func (api *paymentApi) bindFilter(ctx echo.Context) (payment.QueryFilter, error) {
	filter := new(payment.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return payment.QueryFilter{}, err
	}
	filter.Clean()
	return *filter, nil
}

func (api *paymentApi) query(ctx echo.Context) error {
	filter, err := api.bindFilter(ctx)
	if err != nil {
		return ctx.JSON(http.StatusOK, []payment.Payment{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	payments, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying payments")
	}
	if payments == nil {
		payments = []payment.Payment{}
	}
	return ctx.JSON(http.StatusOK, payments)
}

func (api *paymentApi) export(ctx echo.Context) error {
	filter, err := api.bindFilter(ctx)
	if err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}

	var buf bytes.Buffer
	if err := api.exporter.Export(ctx.Request().Context(), filter, &buf); err != nil {
		return errors.Wrap(err, "exporting payments")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+exportsvc.Filename(time.Now().UTC())+`"`)
	return ctx.Blob(http.StatusOK, exportsvc.ContentType, buf.Bytes())
}

func (api *paymentApi) retrieve(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	p, err := api.svc.Get(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting payment")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *paymentApi) update(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	var data payment.UpdatePayment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdatePayment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	p, err := api.svc.Update(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "updating payment")
	}
	return ctx.JSON(http.StatusOK, p)
}
