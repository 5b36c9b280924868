package users

import (
	"github.com/labstack/echo/v4"
	"github.com/shishobooks/circulate/pkg/auth"
	"github.com/shishobooks/circulate/pkg/models"
	"github.com/uptrace/bun"
)

// RegisterRoutes registers the borrower directory.
func RegisterRoutes(e *echo.Echo, db *bun.DB, authMiddleware *auth.Middleware) *Service {
	userService := NewService(db)

	h := &handler{
		userService: userService,
	}

	users := e.Group("/users")
	users.Use(authMiddleware.Authenticate)

	// The desk looks people up by name before lending to them.
	users.GET("", h.list, authMiddleware.RequirePermission(models.ResourceCirculation, models.OperationRead))
	users.GET("/:id", h.retrieve, authMiddleware.RequirePermission(models.ResourceCirculation, models.OperationRead))

	users.POST("", h.create, authMiddleware.RequirePermission(models.ResourceCirculation, models.OperationWrite))
	users.PATCH("/:id", h.update, authMiddleware.RequirePermission(models.ResourceCirculation, models.OperationWrite))
	users.DELETE("/:id", h.deactivate, authMiddleware.RequirePermission(models.ResourceCirculation, models.OperationWrite))

	// Anyone can reset their own password. Staff can reset anyone's.
	users.POST("/:id/reset-password", h.resetPassword)

	return userService
}
