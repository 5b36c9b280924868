package testutils

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shishobooks/circulate/pkg/models"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"
)

type handler struct {
	db *bun.DB
}

type createUserRequest struct {
	Username string  `json:"username" validate:"required"`
	Password string  `json:"password" validate:"required"`
	Email    *string `json:"email"`
	Role     string  `json:"role" default:"staff" validate:"oneof=staff member"`
}

type createUserResponse struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
}

// createUser creates a test user, staff unless another role is given.
// POST /test/users.
func (h *handler) createUser(c echo.Context) error {
	ctx := c.Request().Context()

	var req createUserRequest
	if err := c.Bind(&req); err != nil {
		return errors.WithStack(err)
	}

	role := &models.Role{}
	err := h.db.NewSelect().
		Model(role).
		Where("name = ?", req.Role).
		Scan(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get role")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "failed to hash password")
	}

	now := time.Now()
	user := &models.User{
		CreatedAt:    now,
		UpdatedAt:    now,
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hashedPassword),
		RoleID:       role.ID,
		IsActive:     true,
	}

	_, err = h.db.NewInsert().Model(user).Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to create user")
	}

	return errors.WithStack(c.JSON(http.StatusCreated, createUserResponse{
		ID:       user.ID,
		Username: user.Username,
	}))
}

type resetResponse struct {
	Deleted map[string]int `json:"deleted"`
}

// reset empties every table except roles and permissions.
// DELETE /test/data.
func (h *handler) reset(c echo.Context) error {
	ctx := c.Request().Context()

	deleted := map[string]int{}
	for _, model := range []struct {
		name  string
		model interface{}
	}{
		{"borrow_records", (*models.BorrowRecord)(nil)},
		{"book_copies", (*models.BookCopy)(nil)},
		{"books", (*models.Book)(nil)},
		{"authors", (*models.Author)(nil)},
		{"users", (*models.User)(nil)},
	} {
		result, err := h.db.NewDelete().
			Model(model.model).
			Where("1=1").
			Exec(ctx)
		if err != nil {
			return errors.Wrapf(err, "failed to delete %s", model.name)
		}
		n, _ := result.RowsAffected()
		deleted[model.name] = int(n)
	}

	return errors.WithStack(c.JSON(http.StatusOK, resetResponse{Deleted: deleted}))
}
