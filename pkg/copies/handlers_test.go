package copies

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/shishobooks/circulate/pkg/barcodes"
	"github.com/shishobooks/circulate/pkg/binder"
	"github.com/shishobooks/circulate/pkg/errcodes"
	"github.com/shishobooks/circulate/pkg/models"
	"github.com/shishobooks/circulate/pkg/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(t *testing.T, method, target, payload string, id string) (echo.Context, *httptest.ResponseRecorder) {
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
	if id != "" {
		c.SetParamNames("id")
		c.SetParamValues(id)
	}
	return c, rr
}

func TestHandler_Create(t *testing.T) {
	t.Parallel()

	svc, db, _ := newTestService(t, nil)
	h := &handler{copyService: svc}
	book := testutils.CreateBook(t, db, 0, "Moby Dick", "1.00")

	c, rr := newTestContext(t, http.MethodPost, "/copies", `{"book_id":`+strconv.Itoa(book.ID)+`}`, "")
	require.NoError(t, h.create(c))
	assert.Equal(t, http.StatusCreated, rr.Code)

	var got models.BookCopy
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.NotNil(t, got.Barcode)
	assert.Len(t, *got.Barcode, barcodes.DefaultLength)
	assert.True(t, got.IsAvailable)
}

func TestHandler_Create_UnknownBook(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t, nil)
	h := &handler{copyService: svc}

	c, _ := newTestContext(t, http.MethodPost, "/copies", `{"book_id":42}`, "")
	err := h.create(c)
	assert.True(t, errcodes.HasCode(err, errcodes.CodeNotFound))
}

func TestHandler_BarcodeImage(t *testing.T) {
	t.Parallel()

	svc, db, _ := newTestService(t, nil)
	h := &handler{copyService: svc}
	book := testutils.CreateBook(t, db, 0, "Moby Dick", "1.00")
	bc := testutils.CreateCopy(t, db, book.ID, "555000111222")

	c, rr := newTestContext(t, http.MethodGet, "/copies/1/barcode.png", "", strconv.Itoa(bc.ID))
	require.NoError(t, h.barcodeImage(c))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get(echo.HeaderContentType))

	want, err := barcodes.Render("555000111222", 400, 120)
	require.NoError(t, err)
	assert.Equal(t, want, rr.Body.Bytes())
}

func TestHandler_List(t *testing.T) {
	t.Parallel()

	svc, db, _ := newTestService(t, nil)
	h := &handler{copyService: svc}
	book := testutils.CreateBook(t, db, 0, "Moby Dick", "1.00")
	other := testutils.CreateBook(t, db, 0, "Billy Budd", "1.00")
	testutils.CreateCopy(t, db, book.ID, "100000000001")
	testutils.CreateCopy(t, db, book.ID, "100000000002")
	testutils.CreateCopy(t, db, other.ID, "100000000003")

	c, rr := newTestContext(t, http.MethodGet, "/copies?book_id="+strconv.Itoa(book.ID), "", "")
	require.NoError(t, h.list(c))

	var resp struct {
		Copies []*models.BookCopy `json:"copies"`
		Total  int                `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	assert.Len(t, resp.Copies, 2)
}

func TestHandler_Retrieve_BadID(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t, nil)
	h := &handler{copyService: svc}

	c, _ := newTestContext(t, http.MethodGet, "/copies/x", "", "x")
	err := h.retrieve(c)
	assert.True(t, errcodes.HasCode(err, errcodes.CodeNotFound))
}
