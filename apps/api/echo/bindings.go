package echoapi

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/bursar/core"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// paramID reads a positive integer path param; anything else is a 404.
func paramID(ctx echo.Context, name ...string) (int, error) {
	param := "id"
	if len(name) > 0 {
		param = name[0]
	}
	id, err := strconv.Atoi(ctx.Param(param))
	if err != nil || id <= 0 {
		return 0, errHttpNotFound
	}
	return id, nil
}

// queryID reads an optional positive integer query param; 0 when absent.
func queryID(ctx echo.Context, name string) (int, error) {
	val := ctx.QueryParam(name)
	if val == "" {
		return 0, nil
	}
	id, err := strconv.Atoi(val)
	if err != nil || id <= 0 {
		return 0, core.NewValidationError(nil, core.FieldError{Field: name, Error: "must be a positive integer"})
	}
	return id, nil
}
