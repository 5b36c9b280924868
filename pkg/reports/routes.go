package reports

import (
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
)

// RegisterRoutesWithGroup registers report routes on a pre-configured group.
// The group is expected to require reports:read.
func RegisterRoutesWithGroup(g *echo.Group, db *bun.DB) {
	h := &handler{
		reportService: NewService(db),
	}

	g.GET("/inventory", h.inventory)
}
