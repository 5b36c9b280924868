package authors

import (
	"github.com/labstack/echo/v4"
	"github.com/shishobooks/circulate/pkg/auth"
	"github.com/shishobooks/circulate/pkg/models"
	"github.com/uptrace/bun"
)

// RegisterRoutesWithGroup registers author routes on a pre-configured group.
func RegisterRoutesWithGroup(g *echo.Group, db *bun.DB, authMiddleware *auth.Middleware) {
	authorService := NewService(db)

	h := &handler{
		authorService: authorService,
	}

	g.GET("", h.list)
	g.GET("/:id", h.retrieve)
	g.POST("", h.create, authMiddleware.RequirePermission(models.ResourceCatalog, models.OperationWrite))
	g.PATCH("/:id", h.update, authMiddleware.RequirePermission(models.ResourceCatalog, models.OperationWrite))
	g.DELETE("/:id", h.deleteAuthor, authMiddleware.RequirePermission(models.ResourceCatalog, models.OperationWrite))
}
