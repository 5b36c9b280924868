package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/shishobooks/circulate/pkg/errcodes"
	"github.com/shishobooks/circulate/pkg/models"
	"github.com/shishobooks/circulate/pkg/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareAuthenticate_SetsUser(t *testing.T) {
	t.Parallel()

	db := testutils.NewDB(t)
	authService := NewService(db, "test-secret")
	middleware := NewMiddleware(authService)

	user := testutils.CreateUser(t, db, "reader", models.RoleMember)
	token, err := authService.GenerateToken(user)
	require.NoError(t, err)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/loans", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	c := e.NewContext(req, httptest.NewRecorder())

	var seen *models.User
	err = middleware.Authenticate(func(c echo.Context) error {
		seen, _ = UserFromContext(c)
		return nil
	})(c)
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Equal(t, user.ID, seen.ID)
	assert.True(t, seen.HasPermission(models.ResourceLoans, models.OperationWrite))
}

func TestMiddlewareAuthenticate_RejectsMissingCookie(t *testing.T) {
	t.Parallel()

	db := testutils.NewDB(t)
	middleware := NewMiddleware(NewService(db, "test-secret"))

	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/loans", nil), httptest.NewRecorder())

	nextCalled := false
	err := middleware.Authenticate(func(_ echo.Context) error {
		nextCalled = true
		return nil
	})(c)
	require.Error(t, err)
	assert.False(t, nextCalled)

	var codeErr *errcodes.Error
	require.ErrorAs(t, err, &codeErr)
	assert.Equal(t, http.StatusUnauthorized, codeErr.HTTPCode)
}

func TestMiddlewareAuthenticate_RejectsInactiveUser(t *testing.T) {
	t.Parallel()

	db := testutils.NewDB(t)
	authService := NewService(db, "test-secret")
	middleware := NewMiddleware(authService)

	user := testutils.CreateUser(t, db, "gone", models.RoleMember)
	token, err := authService.GenerateToken(user)
	require.NoError(t, err)

	_, err = db.NewUpdate().
		Model((*models.User)(nil)).
		Set("is_active = ?", false).
		Where("id = ?", user.ID).
		Exec(context.Background())
	require.NoError(t, err)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/loans", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	c := e.NewContext(req, httptest.NewRecorder())

	err = middleware.Authenticate(func(_ echo.Context) error { return nil })(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inactive")
}

func TestMiddlewareAuthenticate_RejectsForeignToken(t *testing.T) {
	t.Parallel()

	db := testutils.NewDB(t)
	middleware := NewMiddleware(NewService(db, "test-secret"))

	user := testutils.CreateUser(t, db, "reader", models.RoleMember)
	token, err := NewService(db, "other-secret").GenerateToken(user)
	require.NoError(t, err)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/loans", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	c := e.NewContext(req, httptest.NewRecorder())

	err = middleware.Authenticate(func(_ echo.Context) error { return nil })(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid or expired token")
}

func TestMiddlewareRequirePermission(t *testing.T) {
	t.Parallel()

	db := testutils.NewDB(t)
	middleware := NewMiddleware(NewService(db, "test-secret"))
	staff := testutils.CreateUser(t, db, "librarian", models.RoleStaff)
	member := testutils.CreateUser(t, db, "reader", models.RoleMember)

	tests := []struct {
		name     string
		user     *models.User
		resource string
		status   int
	}{
		{"staff runs transactions", staff, models.ResourceCirculation, 0},
		{"member cannot run transactions", member, models.ResourceCirculation, http.StatusForbidden},
		{"member borrows for themselves", member, models.ResourceLoans, 0},
		{"anonymous", nil, models.ResourceLoans, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())
			if tt.user != nil {
				c.Set("user", tt.user)
			}

			err := middleware.RequirePermission(tt.resource, models.OperationWrite)(func(_ echo.Context) error {
				return nil
			})(c)
			if tt.status == 0 {
				require.NoError(t, err)
				return
			}
			var codeErr *errcodes.Error
			require.ErrorAs(t, err, &codeErr)
			assert.Equal(t, tt.status, codeErr.HTTPCode)
		})
	}
}
