package books

import (
	"github.com/labstack/echo/v4"
	"github.com/shishobooks/circulate/pkg/auth"
	"github.com/shishobooks/circulate/pkg/copies"
	"github.com/shishobooks/circulate/pkg/models"
)

// RegisterRoutesWithGroup registers book routes on a pre-configured group.
func RegisterRoutesWithGroup(g *echo.Group, bookService *Service, copyService *copies.Service, store FileStore, authMiddleware *auth.Middleware) {
	h := &handler{
		bookService: bookService,
		copyService: copyService,
		store:       store,
	}

	catalogWrite := authMiddleware.RequirePermission(models.ResourceCatalog, models.OperationWrite)

	g.GET("", h.list)
	g.GET("/:id", h.retrieve)
	g.GET("/:id/cover", h.cover)
	g.POST("", h.create, catalogWrite)
	g.PATCH("/:id", h.update, catalogWrite)
	g.DELETE("/:id", h.deleteBook, catalogWrite)
	g.PUT("/:id/cover", h.uploadCover, catalogWrite)
	g.POST("/:id/copies", h.addCopies, authMiddleware.RequirePermission(models.ResourceInventory, models.OperationWrite))
}
