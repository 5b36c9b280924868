package reports

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type handler struct {
	reportService *Service
}

func (h *handler) inventory(c echo.Context) error {
	ctx := c.Request().Context()

	inv, err := h.reportService.Inventory(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, inv))
}
