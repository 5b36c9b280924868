package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/shishobooks/circulate/pkg/binder"
	"github.com/shishobooks/circulate/pkg/errcodes"
	"github.com/shishobooks/circulate/pkg/models"
	"github.com/shishobooks/circulate/pkg/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"
)

func newTestHandler(t *testing.T) (*handler, *bun.DB) {
	t.Helper()

	db := testutils.NewDB(t)
	svc := NewService(db, "test-jwt-secret")
	svc.cost = bcrypt.MinCost
	return &handler{authService: svc}, db
}

func newTestContext(t *testing.T, payload, method, path string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()

	e := echo.New()
	b, err := binder.New()
	require.NoError(t, err)
	e.Binder = b
	e.HTTPErrorHandler = errcodes.NewHandler().Handle

	req := httptest.NewRequest(method, path, strings.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rr := httptest.NewRecorder()
	return e.NewContext(req, rr), rr
}

func TestHandler_Setup_CreatesStaff(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t)

	c, rr := newTestContext(t, `{"username":"librarian","password":"securepassword123"}`, http.MethodPost, "/auth/setup")
	err := h.setup(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp MeResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, models.RoleStaff, resp.RoleName)
	assert.True(t, resp.IsStaff)
	assert.Contains(t, resp.Permissions, "circulation:write")

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.NotEmpty(t, cookies[0].Value)
}

func TestHandler_Setup_RejectsWhenUsersExist(t *testing.T) {
	t.Parallel()
	h, db := newTestHandler(t)

	testutils.CreateUser(t, db, "existingstaff", models.RoleStaff)

	c, _ := newTestContext(t, `{"username":"newstaff","password":"securepassword123"}`, http.MethodPost, "/auth/setup")
	err := h.setup(c)
	require.Error(t, err)

	var errResp *errcodes.Error
	require.ErrorAs(t, err, &errResp)
	assert.Equal(t, http.StatusForbidden, errResp.HTTPCode)
	assert.Contains(t, errResp.Message, "Setup has already been completed")
}

func TestHandler_Signup_CreatesMember(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t)

	c, rr := newTestContext(t, `{"username":"  reader  ","password":"securepassword123"}`, http.MethodPost, "/auth/signup")
	err := h.signup(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, rr.Code)

	var resp MeResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "reader", resp.Username)
	assert.Equal(t, models.RoleMember, resp.RoleName)
	assert.False(t, resp.IsStaff)
	assert.ElementsMatch(t, []string{"catalog:read", "loans:read", "loans:write"}, resp.Permissions)
}

func TestHandler_Signup_RejectsTakenUsername(t *testing.T) {
	t.Parallel()
	h, db := newTestHandler(t)

	testutils.CreateUser(t, db, "Reader", models.RoleMember)

	c, _ := newTestContext(t, `{"username":"reader","password":"securepassword123"}`, http.MethodPost, "/auth/signup")
	err := h.signup(c)
	require.Error(t, err)
	assert.True(t, errcodes.HasCode(err, errcodes.CodeValidationError))
}

func TestHandler_Signup_ValidatesPayload(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t)

	c, _ := newTestContext(t, `{"username":"reader","password":"short"}`, http.MethodPost, "/auth/signup")
	err := h.signup(c)
	require.Error(t, err)
	assert.True(t, errcodes.HasCode(err, errcodes.CodeValidationError))
}

func TestHandler_Login(t *testing.T) {
	t.Parallel()
	h, db := newTestHandler(t)

	testutils.CreateUser(t, db, "reader", models.RoleMember)

	c, rr := newTestContext(t, `{"username":"READER","password":"`+testutils.Password+`"}`, http.MethodPost, "/auth/login")
	err := h.login(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp MeResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "reader", resp.Username)
}

func TestHandler_Login_WrongPassword(t *testing.T) {
	t.Parallel()
	h, db := newTestHandler(t)

	testutils.CreateUser(t, db, "reader", models.RoleMember)

	c, _ := newTestContext(t, `{"username":"reader","password":"not-the-password"}`, http.MethodPost, "/auth/login")
	err := h.login(c)
	require.Error(t, err)

	var errResp *errcodes.Error
	require.ErrorAs(t, err, &errResp)
	assert.Equal(t, http.StatusUnauthorized, errResp.HTTPCode)
}

func TestHandler_Status(t *testing.T) {
	t.Parallel()
	h, db := newTestHandler(t)

	c, rr := newTestContext(t, "", http.MethodGet, "/auth/status")
	require.NoError(t, h.status(c))
	assert.JSONEq(t, `{"needs_setup":true}`, rr.Body.String())

	testutils.CreateUser(t, db, "librarian", models.RoleStaff)

	c, rr = newTestContext(t, "", http.MethodGet, "/auth/status")
	require.NoError(t, h.status(c))
	assert.JSONEq(t, `{"needs_setup":false}`, rr.Body.String())
}

func TestService_GetUserByID_NotFound(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandler(t)

	_, err := h.authService.GetUserByID(context.Background(), 999)
	require.Error(t, err)
	assert.True(t, errcodes.HasCode(err, errcodes.CodeNotFound))
}
