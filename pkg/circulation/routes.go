package circulation

import (
	"github.com/labstack/echo/v4"
	"github.com/shishobooks/circulate/pkg/auth"
	"github.com/shishobooks/circulate/pkg/models"
)

// RegisterTransactionRoutesWithGroup registers the desk transaction routes.
// The group is expected to require circulation:write.
func RegisterTransactionRoutesWithGroup(g *echo.Group, circulationService *Service) {
	h := &handler{circulationService: circulationService}

	g.POST("", h.transact)
}

// RegisterLoanRoutesWithGroup registers the routes borrowers use to see and
// close their loans.
func RegisterLoanRoutesWithGroup(g *echo.Group, circulationService *Service, authMiddleware *auth.Middleware) {
	h := &handler{circulationService: circulationService}

	g.GET("", h.listLoans)
	g.GET("/:id/summary", h.summary)
	g.POST("/:id/return", h.returnLoan, authMiddleware.RequirePermission(models.ResourceLoans, models.OperationWrite))
}

// RegisterBookRoutesWithGroup adds self-service borrow and return to the
// books group.
func RegisterBookRoutesWithGroup(g *echo.Group, circulationService *Service, authMiddleware *auth.Middleware) {
	h := &handler{circulationService: circulationService}

	loansWrite := authMiddleware.RequirePermission(models.ResourceLoans, models.OperationWrite)
	g.POST("/:id/borrow", h.borrowBook, loansWrite)
	g.POST("/:id/return", h.returnBook, loansWrite)
}

// RegisterCopyRoutesWithGroup adds tracking to the copies group.
func RegisterCopyRoutesWithGroup(g *echo.Group, circulationService *Service, authMiddleware *auth.Middleware) {
	h := &handler{circulationService: circulationService}

	g.GET("/:id/status", h.track, authMiddleware.RequirePermission(models.ResourceCirculation, models.OperationRead))
}
