package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/receipt"
	"github.com/trezcool/bursar/core/user"
)

type receiptApi struct {
	svc      *receipt.Service
	validate *validator.Validate
}

func registerReceiptAPI(g *echo.Group, svc *receipt.Service, validate *validator.Validate) {
	api := receiptApi{svc: svc, validate: validate}
	read, write := rolesMiddleware(user.ReaderRoles...), rolesMiddleware(user.WriterRoles...)

	g.GET("", api.query, read)
	g.POST("/generate", api.generate, write)
	g.GET("/:id", api.retrieve, read)
	g.POST("/:id/regenerate", api.regenerate, write)
	g.POST("/:id/email", api.email, write)
	g.GET("/:id/download", api.download, read)
}

// generate is idempotent: a payment that already has a receipt gets it back with 200.
func (api *receiptApi) generate(ctx echo.Context) error {
	paymentID, err := queryID(ctx, "payment_id")
	if err != nil {
		return err
	}
	if paymentID == 0 {
		return core.NewValidationError(nil, core.FieldError{Field: "payment_id", Error: "this field is required"})
	}

	rcpt, err := api.svc.Generate(ctx.Request().Context(), paymentID)
	if err != nil {
		return errors.Wrap(err, "generating receipt")
	}
	return ctx.JSON(http.StatusOK, rcpt)
}

func (api *receiptApi) query(ctx echo.Context) error {
	filter := new(receipt.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []receipt.Receipt{})
	}
	filter.Clean()

	receipts, err := api.svc.Query(ctx.Request().Context(), *filter)
	if err != nil {
		return errors.Wrap(err, "querying receipts")
	}
	if receipts == nil {
		receipts = []receipt.Receipt{}
	}
	return ctx.JSON(http.StatusOK, receipts)
}

func (api *receiptApi) retrieve(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	rcpt, err := api.svc.Get(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting receipt")
	}
	return ctx.JSON(http.StatusOK, rcpt)
}

func (api *receiptApi) regenerate(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	rcpt, err := api.svc.Regenerate(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "regenerating receipt")
	}
	return ctx.JSON(http.StatusOK, rcpt)
}

func (api *receiptApi) email(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	var data receipt.EmailRequest
	if ctx.Request().ContentLength != 0 {
		if err := ctx.Bind(&data); err != nil {
			return errors.Wrap(err, "binding to EmailRequest")
		}
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rcpt, err := api.svc.Email(ctx.Request().Context(), id, data.Addresses())
	if err != nil {
		return errors.Wrap(err, "emailing receipt")
	}
	return ctx.JSON(http.StatusAccepted, rcpt)
}

func (api *receiptApi) download(ctx echo.Context) error {
	id, err := paramID(ctx)
	if err != nil {
		return err
	}
	rcpt, content, err := api.svc.Download(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "downloading receipt")
	}
	defer func() { _ = content.Close() }()

	resp := ctx.Response()
	resp.Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+rcpt.Filename()+`"`)
	return ctx.Stream(http.StatusOK, "application/pdf", content)
}
