package circulation

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shishobooks/circulate/pkg/auth"
	"github.com/shishobooks/circulate/pkg/errcodes"
	"github.com/shishobooks/circulate/pkg/models"
)

type handler struct {
	circulationService *Service
}

func currentUser(c echo.Context) (*models.User, error) {
	user, ok := auth.UserFromContext(c)
	if !ok {
		return nil, errcodes.Unauthorized("Authentication required")
	}
	return user, nil
}

// transact runs a desk transaction against a scanned barcode.
func (h *handler) transact(c echo.Context) error {
	ctx := c.Request().Context()

	params := TransactionPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	resp := TransactionResponse{Action: params.Action, Level: errcodes.LevelSuccess}

	switch params.Action {
	case ActionBorrow:
		record, err := h.circulationService.BorrowByBarcode(ctx, params.Code, *params.BorrowerID, BorrowOptions{RentedDays: params.RentedDays})
		if err != nil {
			return errors.WithStack(err)
		}
		resp.Message = MessageBorrowed
		resp.Record = record
	case ActionReturn:
		receipt, err := h.circulationService.ReturnByBarcode(ctx, params.Code)
		if err != nil {
			return errors.WithStack(err)
		}
		resp.Message = MessageReturned
		resp.Record = receipt.Record
		resp.Fee = &receipt.Fee
	case ActionTrack:
		status, err := h.circulationService.TrackByBarcode(ctx, params.Code)
		if err != nil {
			return errors.WithStack(err)
		}
		resp.Level = errcodes.LevelInfo
		resp.Message = status.Message
		resp.Status = status
	}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

func (h *handler) borrowBook(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Book")
	}
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	params := BorrowPayload{}
	c.Set("disallow_empty_body", false)
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	record, err := h.circulationService.BorrowBook(ctx, id, user.ID, BorrowOptions{RentedDays: params.RentedDays})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusCreated, TransactionResponse{
		Action:  ActionBorrow,
		Level:   errcodes.LevelSuccess,
		Message: MessageBorrowed,
		Record:  record,
	}))
}

func (h *handler) returnBook(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Book")
	}
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	receipt, err := h.circulationService.ReturnBook(ctx, id, user.ID)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, TransactionResponse{
		Action:  ActionReturn,
		Level:   errcodes.LevelSuccess,
		Message: MessageReturned,
		Record:  receipt.Record,
		Fee:     &receipt.Fee,
	}))
}

// returnLoan closes a loan by id. Staff may close anyone's loan; everyone
// else only their own.
func (h *handler) returnLoan(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Borrow record")
	}
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	var receipt *Receipt
	if user.IsStaff() {
		receipt, err = h.circulationService.Return(ctx, id)
	} else {
		receipt, err = h.circulationService.ReturnOwn(ctx, id, user.ID)
	}
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, TransactionResponse{
		Action:  ActionReturn,
		Level:   errcodes.LevelSuccess,
		Message: MessageReturned,
		Record:  receipt.Record,
		Fee:     &receipt.Fee,
	}))
}

func (h *handler) summary(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Borrow record")
	}
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	opts := RetrieveRecordOptions{ID: &id}
	if !user.IsStaff() {
		opts.BorrowerID = &user.ID
	}

	receipt, err := h.circulationService.Summary(ctx, opts)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, receipt))
}

func (h *handler) listLoans(c echo.Context) error {
	ctx := c.Request().Context()
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	params := ListLoansQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	opts := ListRecordsOptions{
		Limit:      &params.Limit,
		Offset:     &params.Offset,
		BorrowerID: params.BorrowerID,
		BookCopyID: params.CopyID,
		BookID:     params.BookID,
		Open:       params.Open,
	}
	if !user.IsStaff() {
		opts.BorrowerID = &user.ID
	}

	records, total, err := h.circulationService.ListRecordsWithTotal(ctx, opts)
	if err != nil {
		return errors.WithStack(err)
	}

	response := map[string]any{
		"loans": records,
		"total": total,
	}

	return errors.WithStack(c.JSON(http.StatusOK, response))
}

func (h *handler) track(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Copy")
	}

	status, err := h.circulationService.Track(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, status))
}
