package copies

import (
	"github.com/labstack/echo/v4"
	"github.com/shishobooks/circulate/pkg/auth"
	"github.com/shishobooks/circulate/pkg/models"
)

// RegisterRoutesWithGroup registers copy routes on a pre-configured group.
func RegisterRoutesWithGroup(g *echo.Group, copyService *Service, authMiddleware *auth.Middleware) {
	h := &handler{
		copyService: copyService,
	}

	g.GET("", h.list)
	g.GET("/:id", h.retrieve)
	g.GET("/:id/barcode.png", h.barcodeImage)
	g.POST("", h.create, authMiddleware.RequirePermission(models.ResourceInventory, models.OperationWrite))
	g.POST("/:id/barcode", h.assignBarcode, authMiddleware.RequirePermission(models.ResourceInventory, models.OperationWrite))
	g.DELETE("/:id", h.deleteCopy, authMiddleware.RequirePermission(models.ResourceInventory, models.OperationWrite))
}
