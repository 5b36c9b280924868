package copies

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/circulate/pkg/errcodes"
)

type handler struct {
	copyService *Service
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	params := ListCopiesQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	copies, total, err := h.copyService.ListCopiesWithTotal(ctx, ListCopiesOptions{
		Limit:     &params.Limit,
		Offset:    &params.Offset,
		BookID:    params.BookID,
		Available: params.Available,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	response := map[string]any{
		"copies": copies,
		"total":  total,
	}

	return errors.WithStack(c.JSON(http.StatusOK, response))
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Copy")
	}

	bc, err := h.copyService.RetrieveCopy(ctx, RetrieveCopyOptions{ID: &id})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, bc))
}

// create adds a single copy to a book.
func (h *handler) create(c echo.Context) error {
	ctx := c.Request().Context()

	params := CreateCopyPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	bc, err := h.copyService.CreateCopy(ctx, params.BookID)
	if err != nil {
		return errors.WithStack(err)
	}

	logger.FromContext(ctx).Info("copy added", logger.Data{"copy_id": bc.ID, "book_id": bc.BookID, "barcode": *bc.Barcode})

	return errors.WithStack(c.JSON(http.StatusCreated, bc))
}

func (h *handler) barcodeImage(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Copy")
	}

	png, err := h.copyService.BarcodeImage(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	c.Response().Header().Set("Cache-Control", "private, max-age=86400")
	return errors.WithStack(c.Blob(http.StatusOK, "image/png", png))
}

func (h *handler) assignBarcode(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Copy")
	}

	bc, err := h.copyService.AssignBarcode(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, bc))
}

func (h *handler) deleteCopy(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Copy")
	}

	if err := h.copyService.DeleteCopy(ctx, id); err != nil {
		return errors.WithStack(err)
	}

	return c.NoContent(http.StatusNoContent)
}
