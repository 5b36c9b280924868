package users

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

func newUsersTestContext(t *testing.T, method, payload, path string, current *models.User) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()

	e := echo.New()
	b, err := binder.New()
	require.NoError(t, err)
	e.Binder = b
	e.HTTPErrorHandler = errcodes.NewHandler().Handle

	req := httptest.NewRequest(method, path, strings.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rr := httptest.NewRecorder()
	c := e.NewContext(req, rr)
	if current != nil {
		c.Set("user", current)
		c.Set("user_id", current.ID)
	}
	return c, rr
}

func withID(c echo.Context, route string, id int) {
	c.SetPath(route)
	c.SetParamNames("id")
	c.SetParamValues(strconv.Itoa(id))
}

func TestHandlerCreate(t *testing.T) {
	t.Parallel()

	db := testutils.NewDB(t)
	h := &handler{userService: NewService(db)}
	staff := testutils.CreateUser(t, db, "desk", models.RoleStaff)

	c, rr := newUsersTestContext(t, http.MethodPost, `{"username":"  reader ","password":"password123"}`, "/users", staff)
	require.NoError(t, h.create(c))
	assert.Equal(t, http.StatusCreated, rr.Code)

	var user models.User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &user))
	assert.Equal(t, "reader", user.Username)
	require.NotNil(t, user.Role)
	assert.Equal(t, models.RoleMember, user.Role.Name)
}

func TestHandlerResetPassword_SelfRequiresCurrentPassword(t *testing.T) {
	t.Parallel()

	db := testutils.NewDB(t)
	h := &handler{userService: NewService(db)}
	user := testutils.CreateUser(t, db, "reader", models.RoleMember)

	c, _ := newUsersTestContext(t, http.MethodPost, `{"new_password":"newpassword123"}`, "/users/"+strconv.Itoa(user.ID)+"/reset-password", user)
	withID(c, "/users/:id/reset-password", user.ID)

	err := h.resetPassword(c)
	require.Error(t, err)

	var codeErr *errcodes.Error
	require.ErrorAs(t, err, &codeErr)
	assert.Equal(t, errcodes.CodeValidationError, codeErr.Code)
	assert.Equal(t, "Current password is required when resetting your own password", codeErr.Message)
}

func TestHandlerResetPassword_SelfWithCurrentPassword(t *testing.T) {
	t.Parallel()

	db := testutils.NewDB(t)
	h := &handler{userService: NewService(db)}
	user := testutils.CreateUser(t, db, "reader", models.RoleMember)

	payload := `{"current_password":"` + testutils.Password + `","new_password":"newpassword123"}`
	c, rr := newUsersTestContext(t, http.MethodPost, payload, "/users/"+strconv.Itoa(user.ID)+"/reset-password", user)
	withID(c, "/users/:id/reset-password", user.ID)

	require.NoError(t, h.resetPassword(c))
	assert.Equal(t, http.StatusOK, rr.Code)

	valid, err := h.userService.VerifyPassword(c.Request().Context(), user.ID, "newpassword123")
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestHandlerResetPassword_Other(t *testing.T) {
	t.Parallel()

	db := testutils.NewDB(t)
	h := &handler{userService: NewService(db)}
	staff := testutils.CreateUser(t, db, "desk", models.RoleStaff)
	member := testutils.CreateUser(t, db, "reader", models.RoleMember)
	other := testutils.CreateUser(t, db, "other", models.RoleMember)

	c, _ := newUsersTestContext(t, http.MethodPost, `{"new_password":"newpassword123"}`, "/users/"+strconv.Itoa(other.ID)+"/reset-password", member)
	withID(c, "/users/:id/reset-password", other.ID)
	err := h.resetPassword(c)
	require.Error(t, err)
	assert.True(t, errcodes.HasCode(err, "forbidden"))

	c, rr := newUsersTestContext(t, http.MethodPost, `{"new_password":"newpassword123"}`, "/users/"+strconv.Itoa(other.ID)+"/reset-password", staff)
	withID(c, "/users/:id/reset-password", other.ID)
	require.NoError(t, h.resetPassword(c))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHandlerDeactivate_Self(t *testing.T) {
	t.Parallel()

	db := testutils.NewDB(t)
	h := &handler{userService: NewService(db)}
	staff := testutils.CreateUser(t, db, "desk", models.RoleStaff)

	c, _ := newUsersTestContext(t, http.MethodDelete, "", "/users/"+strconv.Itoa(staff.ID), staff)
	withID(c, "/users/:id", staff.ID)

	err := h.deactivate(c)
	require.Error(t, err)
	assert.True(t, errcodes.HasCode(err, errcodes.CodeValidationError))
}

func TestHandlerUpdate_DeactivateWithOpenLoan(t *testing.T) {
	t.Parallel()

	db := testutils.NewDB(t)
	h := &handler{userService: NewService(db)}
	staff := testutils.CreateUser(t, db, "desk", models.RoleStaff)
	member := testutils.CreateUser(t, db, "reader", models.RoleMember)

	author := testutils.CreateAuthor(t, db, "Ursula K. Le Guin")
	book := testutils.CreateBook(t, db, author.ID, "The Dispossessed", "1.50")
	bc := testutils.CreateCopy(t, db, book.ID, "100000000001")
	testutils.CreateOpenRecord(t, db, bc.ID, member.ID, 7, bc.CreatedAt)

	c, _ := newUsersTestContext(t, http.MethodPatch, `{"is_active":false}`, "/users/"+strconv.Itoa(member.ID), staff)
	withID(c, "/users/:id", member.ID)

	err := h.update(c)
	require.Error(t, err)
	assert.True(t, errcodes.HasCode(err, errcodes.CodePreconditionFailed))
}
