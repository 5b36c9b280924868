package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/circulate/pkg/barcodes"
	"github.com/shishobooks/circulate/pkg/config"
	"github.com/shishobooks/circulate/pkg/copies"
	"github.com/shishobooks/circulate/pkg/database"
	"github.com/shishobooks/circulate/pkg/migrations"
	"github.com/shishobooks/circulate/pkg/storage"
	"github.com/uptrace/bun"
	"github.com/urfave/cli/v2"
)

func main() {
	log := logger.New()

	var db *bun.DB
	var copyService *copies.Service

	app := &cli.App{
		Name:  "inventory",
		Usage: "maintain copy barcodes and their images",
		Before: func(c *cli.Context) error {
			cfg, err := config.New()
			if err != nil {
				return errors.Wrap(err, "config error")
			}
			db, err = database.New(cfg)
			if err != nil {
				return errors.Wrap(err, "database error")
			}
			if _, err := migrations.BringUpToDate(c.Context, db); err != nil {
				return errors.Wrap(err, "migrations error")
			}
			copyService = copies.NewService(db, barcodes.NewGeneratorFromConfig(cfg), storage.New(cfg.DataDir))
			return nil
		},
		After: func(_ *cli.Context) error {
			if db == nil {
				return nil
			}
			return db.Close()
		},
		Commands: []*cli.Command{
			{
				Name:  "backfill-barcodes",
				Usage: "render images for copies whose barcode image is missing",
				Action: func(c *cli.Context) error {
					n, err := copyService.BackfillImages(c.Context)
					if err != nil {
						return err
					}
					log.Info("barcode images rendered", logger.Data{"count": n})
					fmt.Printf("Rendered %d barcode image(s)\n", n)
					return nil
				},
			},
			{
				Name:  "assign-barcodes",
				Usage: "assign barcodes to copies that have none",
				Action: func(c *cli.Context) error {
					n, err := copyService.AssignMissingBarcodes(c.Context)
					if err != nil {
						return err
					}
					log.Info("barcodes assigned", logger.Data{"count": n})
					fmt.Printf("Assigned %d barcode(s)\n", n)
					return nil
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Err(err).Fatal("inventory failed")
	}
}
