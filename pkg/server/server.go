package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/health"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/echo/v4/middleware/recovery"
	"github.com/shishobooks/circulate/pkg/auth"
	"github.com/shishobooks/circulate/pkg/authors"
	"github.com/shishobooks/circulate/pkg/barcodes"
	"github.com/shishobooks/circulate/pkg/binder"
	"github.com/shishobooks/circulate/pkg/books"
	"github.com/shishobooks/circulate/pkg/circulation"
	"github.com/shishobooks/circulate/pkg/config"
	"github.com/shishobooks/circulate/pkg/copies"
	"github.com/shishobooks/circulate/pkg/errcodes"
	"github.com/shishobooks/circulate/pkg/models"
	"github.com/shishobooks/circulate/pkg/reports"
	"github.com/shishobooks/circulate/pkg/storage"
	"github.com/shishobooks/circulate/pkg/testutils"
	"github.com/shishobooks/circulate/pkg/users"
	"github.com/uptrace/bun"
)

func New(cfg *config.Config, db *bun.DB) (*http.Server, error) {
	e := echo.New()

	b, err := binder.New()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	e.Binder = b

	e.Use(logger.Middleware())
	e.Use(recovery.Middleware())
	e.Use(middleware.CORS())

	health.RegisterRoutes(e)

	authService := auth.RegisterRoutes(e, db, cfg.JWTSecret)
	authMiddleware := auth.NewMiddleware(authService)

	registerProtectedRoutes(e, db, cfg, authMiddleware)

	if cfg.Environment == config.EnvironmentTest {
		testutils.RegisterRoutes(e, db)
	}

	echo.NotFoundHandler = notFoundHandler
	e.HTTPErrorHandler = errcodes.NewHandler().Handle

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler:           e,
		ReadHeaderTimeout: 3 * time.Second,
	}

	return srv, nil
}

// registerProtectedRoutes registers all protected API routes with proper authentication and authorization.
func registerProtectedRoutes(e *echo.Echo, db *bun.DB, cfg *config.Config, authMiddleware *auth.Middleware) {
	store := storage.New(cfg.DataDir)
	bookService := books.NewService(db)
	copyService := copies.NewService(db, barcodes.NewGeneratorFromConfig(cfg), store)
	circulationService := circulation.NewService(db, cfg)

	// Authors routes
	authorsGroup := e.Group("/authors")
	authorsGroup.Use(authMiddleware.Authenticate)
	authorsGroup.Use(authMiddleware.RequirePermission(models.ResourceCatalog, models.OperationRead))
	authors.RegisterRoutesWithGroup(authorsGroup, db, authMiddleware)

	// Books routes, including self-service borrow and return
	booksGroup := e.Group("/books")
	booksGroup.Use(authMiddleware.Authenticate)
	booksGroup.Use(authMiddleware.RequirePermission(models.ResourceCatalog, models.OperationRead))
	books.RegisterRoutesWithGroup(booksGroup, bookService, copyService, store, authMiddleware)
	circulation.RegisterBookRoutesWithGroup(booksGroup, circulationService, authMiddleware)

	// Copies routes
	copiesGroup := e.Group("/copies")
	copiesGroup.Use(authMiddleware.Authenticate)
	copiesGroup.Use(authMiddleware.RequirePermission(models.ResourceInventory, models.OperationRead))
	copies.RegisterRoutesWithGroup(copiesGroup, copyService, authMiddleware)
	circulation.RegisterCopyRoutesWithGroup(copiesGroup, circulationService, authMiddleware)

	// Desk transactions by barcode
	transactionsGroup := e.Group("/transactions")
	transactionsGroup.Use(authMiddleware.Authenticate)
	transactionsGroup.Use(authMiddleware.RequirePermission(models.ResourceCirculation, models.OperationWrite))
	circulation.RegisterTransactionRoutesWithGroup(transactionsGroup, circulationService)

	// Loans routes
	loansGroup := e.Group("/loans")
	loansGroup.Use(authMiddleware.Authenticate)
	loansGroup.Use(authMiddleware.RequirePermission(models.ResourceLoans, models.OperationRead))
	circulation.RegisterLoanRoutesWithGroup(loansGroup, circulationService, authMiddleware)

	// Reports routes
	reportsGroup := e.Group("/reports")
	reportsGroup.Use(authMiddleware.Authenticate)
	reportsGroup.Use(authMiddleware.RequirePermission(models.ResourceReports, models.OperationRead))
	reports.RegisterRoutesWithGroup(reportsGroup, db)

	// Borrower directory
	users.RegisterRoutes(e, db, authMiddleware)
}

func notFoundHandler(c echo.Context) error {
	c.SetPath("/:path")
	return errcodes.NotFound("Page")
}
