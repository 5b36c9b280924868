package books

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/gabriel-vasile/mimetype"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/circulate/pkg/copies"
	"github.com/shishobooks/circulate/pkg/errcodes"
	"github.com/shishobooks/circulate/pkg/models"
	"github.com/shishobooks/circulate/pkg/storage"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

const maxCoverSize = 10 << 20

var coverExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// FileStore persists cover images.
type FileStore interface {
	Save(dir, name string, data []byte) (string, error)
	Read(ref string) ([]byte, error)
	Remove(ref string) error
}

type handler struct {
	bookService *Service
	copyService *copies.Service
	store       FileStore
}

func parseRent(s string) (decimal.Decimal, error) {
	rent, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errcodes.ValidationError("Daily rent must be a number.")
	}
	return rent, nil
}

func (h *handler) create(c echo.Context) error {
	ctx := c.Request().Context()

	params := CreateBookPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	rent, err := parseRent(params.DailyRent)
	if err != nil {
		return err
	}

	book := &models.Book{
		Title:     params.Title,
		AuthorID:  params.AuthorID,
		DailyRent: rent,
	}
	var stock StockFunc
	if params.Copies > 0 {
		stock = func(ctx context.Context, tx bun.IDB, bookID int) error {
			_, err := h.copyService.AddCopiesTx(ctx, tx, bookID, params.Copies)
			return err
		}
	}
	if err := h.bookService.CreateBookWithStock(ctx, book, stock); err != nil {
		return errors.WithStack(err)
	}

	book, err = h.bookService.RetrieveBook(ctx, RetrieveBookOptions{ID: &book.ID})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusCreated, book))
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Book")
	}

	book, err := h.bookService.RetrieveBook(ctx, RetrieveBookOptions{ID: &id})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, book))
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	params := ListBooksQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	books, total, err := h.bookService.ListBooksWithTotal(ctx, ListBooksOptions{
		Limit:         &params.Limit,
		Offset:        &params.Offset,
		AuthorID:      params.AuthorID,
		Search:        params.Search,
		AvailableOnly: params.AvailableOnly,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	response := map[string]any{
		"books": books,
		"total": total,
	}

	return errors.WithStack(c.JSON(http.StatusOK, response))
}

func (h *handler) update(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Book")
	}

	params := UpdateBookPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	book, err := h.bookService.RetrieveBook(ctx, RetrieveBookOptions{ID: &id})
	if err != nil {
		return errors.WithStack(err)
	}

	opts := UpdateBookOptions{Columns: []string{}}
	if params.Title != nil && *params.Title != book.Title {
		book.Title = *params.Title
		opts.Columns = append(opts.Columns, "title")
	}
	if params.AuthorID != nil && *params.AuthorID != book.AuthorID {
		book.AuthorID = *params.AuthorID
		opts.Columns = append(opts.Columns, "author_id")
	}
	if params.DailyRent != nil {
		rent, err := parseRent(*params.DailyRent)
		if err != nil {
			return err
		}
		if !rent.Equal(book.DailyRent) {
			book.DailyRent = rent
			opts.Columns = append(opts.Columns, "daily_rent")
		}
	}

	if err := h.bookService.UpdateBook(ctx, book, opts); err != nil {
		return errors.WithStack(err)
	}

	book, err = h.bookService.RetrieveBook(ctx, RetrieveBookOptions{ID: &id})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, book))
}

func (h *handler) deleteBook(c echo.Context) error {
	ctx := c.Request().Context()
	log := logger.FromContext(ctx)
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Book")
	}

	refs, err := h.bookService.DeleteBook(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	for _, ref := range refs {
		if err := h.store.Remove(ref); err != nil {
			log.Warn("failed to remove book file", logger.Data{"book_id": id, "ref": ref, "error": err.Error()})
		}
	}

	return c.NoContent(http.StatusNoContent)
}

// addCopies shelves more copies of a book.
func (h *handler) addCopies(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Book")
	}

	params := copies.AddCopiesPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	created, err := h.copyService.AddCopies(ctx, id, params.Count)
	if err != nil {
		return errors.WithStack(err)
	}

	logger.FromContext(ctx).Info("copies added", logger.Data{"book_id": id, "count": len(created)})

	return errors.WithStack(c.JSON(http.StatusCreated, map[string]any{
		"copies":  created,
		"level":   errcodes.LevelSuccess,
		"message": "Stock updated successfully.",
	}))
}

func (h *handler) uploadCover(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Book")
	}

	params := UploadCoverPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}
	header, ok := params.FormFiles["cover"]
	if !ok {
		return errcodes.ValidationError(`"cover" is required`)
	}
	if header.Size > maxCoverSize {
		return errcodes.ValidationError("Cover images can be at most 10 MB.")
	}

	book, err := h.bookService.RetrieveBook(ctx, RetrieveBookOptions{ID: &id})
	if err != nil {
		return errors.WithStack(err)
	}

	f, err := header.Open()
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxCoverSize+1))
	if err != nil {
		return errors.WithStack(err)
	}

	mtype := mimetype.Detect(data)
	ext, ok := coverExtensions[mtype.String()]
	if !ok {
		return errcodes.ValidationError("Cover must be a JPEG, PNG, WebP or GIF image.")
	}

	ref, err := h.store.Save(storage.DirCovers, "book_"+strconv.Itoa(id)+ext, data)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := h.bookService.SetCover(ctx, id, ref); err != nil {
		return errors.WithStack(err)
	}
	if book.ImageFilename != nil && *book.ImageFilename != ref {
		if err := h.store.Remove(*book.ImageFilename); err != nil {
			logger.FromContext(ctx).Warn("failed to remove old cover", logger.Data{"book_id": id, "error": err.Error()})
		}
	}

	book.ImageFilename = &ref
	return errors.WithStack(c.JSON(http.StatusOK, book))
}

func (h *handler) cover(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Book")
	}

	book, err := h.bookService.RetrieveBook(ctx, RetrieveBookOptions{ID: &id})
	if err != nil {
		return errors.WithStack(err)
	}
	if book.ImageFilename == nil {
		return errcodes.NotFound("Cover")
	}

	data, err := h.store.Read(*book.ImageFilename)
	if err != nil {
		return errcodes.NotFound("Cover")
	}

	return errors.WithStack(c.Blob(http.StatusOK, mimetype.Detect(data).String(), data))
}
