package circulation

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/shishobooks/circulate/pkg/binder"
	"github.com/shishobooks/circulate/pkg/errcodes"
	"github.com/shishobooks/circulate/pkg/models"
	"github.com/shishobooks/circulate/pkg/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(t *testing.T, user *models.User, method, target, payload, id string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()

	e := echo.New()
	b, err := binder.New()
	require.NoError(t, err)
	e.Binder = b

	var req *http.Request
	if payload == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(payload))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rr := httptest.NewRecorder()
	c := e.NewContext(req, rr)
	if user != nil {
		c.Set("user", user)
	}
	if id != "" {
		c.SetParamNames("id")
		c.SetParamValues(id)
	}
	return c, rr
}

func TestHandler_Transact(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	h := &handler{circulationService: f.svc}
	staff := testutils.CreateUser(t, f.db, "desk", models.RoleStaff)

	payload := `{"code":"100000000001","action":"borrow","borrower_id":` + strconv.Itoa(f.u1.ID) + `,"rented_days":5}`
	c, rr := newTestContext(t, staff, http.MethodPost, "/transactions", payload, "")
	require.NoError(t, h.transact(c))

	var resp TransactionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, errcodes.LevelSuccess, resp.Level)
	assert.Equal(t, MessageBorrowed, resp.Message)
	require.NotNil(t, resp.Record)
	assert.Equal(t, 5, resp.Record.RentedDays)

	c, rr = newTestContext(t, staff, http.MethodPost, "/transactions", `{"code":"100000000001","action":"TRACK"}`, "")
	require.NoError(t, h.transact(c))
	resp = TransactionResponse{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, errcodes.LevelInfo, resp.Level)
	assert.Equal(t, "This copy is borrowed by u1.", resp.Message)

	c, rr = newTestContext(t, staff, http.MethodPost, "/transactions", `{"code":"100000000001","action":"return"}`, "")
	require.NoError(t, h.transact(c))
	resp = TransactionResponse{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, MessageReturned, resp.Message)
	require.NotNil(t, resp.Fee)
	testutils.RequireAvailabilityConsistent(t, f.db)
}

func TestHandler_Transact_Validation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	h := &handler{circulationService: f.svc}
	staff := testutils.CreateUser(t, f.db, "desk", models.RoleStaff)

	tests := []struct {
		name    string
		payload string
	}{
		{"borrow without borrower", `{"code":"100000000001","action":"borrow"}`},
		{"unknown action", `{"code":"100000000001","action":"renew"}`},
		{"letters in code", `{"code":"ABC","action":"track"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestContext(t, staff, http.MethodPost, "/transactions", tt.payload, "")
			err := h.transact(c)
			require.Error(t, err)
			assert.True(t, errcodes.HasCode(err, errcodes.CodeValidationError))
		})
	}
	assert.True(t, f.reloadCopy(t).IsAvailable)
}

func TestHandler_Transact_UnknownBarcode(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	h := &handler{circulationService: f.svc}
	staff := testutils.CreateUser(t, f.db, "desk", models.RoleStaff)

	c, _ := newTestContext(t, staff, http.MethodPost, "/transactions", `{"code":"424242","action":"return"}`, "")
	err := h.transact(c)
	assert.True(t, errcodes.HasCode(err, errcodes.CodeNotFound))
}

func TestHandler_SelfService(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	h := &handler{circulationService: f.svc}
	bookID := strconv.Itoa(f.book.ID)

	c, rr := newTestContext(t, f.u1, http.MethodPost, "/books/"+bookID+"/borrow", "", bookID)
	require.NoError(t, h.borrowBook(c))
	assert.Equal(t, http.StatusCreated, rr.Code)

	c, _ = newTestContext(t, f.u1, http.MethodPost, "/books/"+bookID+"/borrow", "", bookID)
	err := h.borrowBook(c)
	require.Error(t, err)
	assert.Equal(t, MessageAlreadyBorrowed, err.Error())

	c, rr = newTestContext(t, f.u1, http.MethodPost, "/books/"+bookID+"/return", "", bookID)
	require.NoError(t, h.returnBook(c))
	assert.Equal(t, http.StatusOK, rr.Code)

	c, _ = newTestContext(t, f.u1, http.MethodPost, "/books/"+bookID+"/return", "", bookID)
	err = h.returnBook(c)
	require.Error(t, err)
	assert.Equal(t, MessageAlreadyReturned, err.Error())
}

func TestHandler_Loans_ScopedToMember(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	h := &handler{circulationService: f.svc}
	other := testutils.CreateCopy(t, f.db, f.book.ID, "100000000002")

	mine, err := f.svc.Borrow(t.Context(), f.copy.ID, f.u1.ID, BorrowOptions{})
	require.NoError(t, err)
	theirs, err := f.svc.Borrow(t.Context(), other.ID, f.u2.ID, BorrowOptions{})
	require.NoError(t, err)

	c, rr := newTestContext(t, f.u1, http.MethodGet, "/loans?borrower_id="+strconv.Itoa(f.u2.ID), "", "")
	require.NoError(t, h.listLoans(c))

	var resp struct {
		Loans []*models.BorrowRecord `json:"loans"`
		Total int                    `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
	require.Len(t, resp.Loans, 1)
	assert.Equal(t, mine.ID, resp.Loans[0].ID)

	c, _ = newTestContext(t, f.u1, http.MethodGet, "/loans/1/summary", "", strconv.Itoa(theirs.ID))
	err = h.summary(c)
	assert.True(t, errcodes.HasCode(err, errcodes.CodeNotFound))

	c, _ = newTestContext(t, f.u1, http.MethodPost, "/loans/1/return", "", strconv.Itoa(theirs.ID))
	err = h.returnLoan(c)
	assert.True(t, errcodes.HasCode(err, errcodes.CodeNotFound))

	staff := testutils.CreateUser(t, f.db, "desk", models.RoleStaff)
	c, rr = newTestContext(t, staff, http.MethodPost, "/loans/1/return", "", strconv.Itoa(theirs.ID))
	require.NoError(t, h.returnLoan(c))
	assert.Equal(t, http.StatusOK, rr.Code)
	testutils.RequireAvailabilityConsistent(t, f.db)
}

func TestHandler_Track(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	h := &handler{circulationService: f.svc}

	c, rr := newTestContext(t, f.u1, http.MethodGet, "/copies/1/status", "", strconv.Itoa(f.copy.ID))
	require.NoError(t, h.track(c))

	var status Status
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.True(t, status.InLibrary)
}

func TestHandler_RequiresUser(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	h := &handler{circulationService: f.svc}

	c, _ := newTestContext(t, nil, http.MethodGet, "/loans", "", "")
	err := h.listLoans(c)
	assert.True(t, errcodes.HasCode(err, "unauthorized"))
}
