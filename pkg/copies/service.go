package copies

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/circulate/pkg/barcodes"
	"github.com/shishobooks/circulate/pkg/errcodes"
	"github.com/shishobooks/circulate/pkg/models"
	"github.com/shishobooks/circulate/pkg/storage"
	"github.com/uptrace/bun"
)

// insertAttempts bounds how often CreateCopy redraws a barcode that another
// writer claimed between the uniqueness check and the insert.
const insertAttempts = 3

// ImageStore persists rendered barcode images.
type ImageStore interface {
	Save(dir, name string, data []byte) (string, error)
	Read(ref string) ([]byte, error)
	Exists(ref string) bool
	Remove(ref string) error
}

type RetrieveCopyOptions struct {
	ID      *int
	Barcode *string
}

type ListCopiesOptions struct {
	Limit     *int
	Offset    *int
	BookID    *int
	Available *bool

	includeTotal bool
}

type Service struct {
	db        *bun.DB
	generator *barcodes.Generator
	store     ImageStore
}

func NewService(db *bun.DB, generator *barcodes.Generator, store ImageStore) *Service {
	return &Service{db, generator, store}
}

// BarcodeExists reports whether any copy already carries code.
func BarcodeExists(db bun.IDB) barcodes.ExistsFunc {
	return func(ctx context.Context, code string) (bool, error) {
		exists, err := db.NewSelect().
			Model((*models.BookCopy)(nil)).
			Where("barcode = ?", code).
			Exists(ctx)
		return exists, errors.WithStack(err)
	}
}

func isBarcodeConflict(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: book_copies.barcode")
}

// CreateCopy shelves a new available copy of a book with a fresh barcode and
// its rendered image.
func (svc *Service) CreateCopy(ctx context.Context, bookID int) (*models.BookCopy, error) {
	return svc.createCopy(ctx, svc.db, bookID)
}

func (svc *Service) createCopy(ctx context.Context, db bun.IDB, bookID int) (*models.BookCopy, error) {
	bookExists, err := db.NewSelect().
		Model((*models.Book)(nil)).
		Where("id = ?", bookID).
		Exists(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if !bookExists {
		return nil, errcodes.NotFound("Book")
	}

	for attempt := 1; ; attempt++ {
		code, err := svc.generator.GenerateUnique(ctx, BarcodeExists(db))
		if err != nil {
			return nil, err
		}

		now := time.Now()
		bc := &models.BookCopy{
			CreatedAt:   now,
			UpdatedAt:   now,
			BookID:      bookID,
			Barcode:     &code,
			IsAvailable: true,
		}
		err = svc.saveCopy(ctx, db, bc)
		if isBarcodeConflict(err) {
			// The image file belongs to the copy that holds the code.
			if attempt < insertAttempts {
				continue
			}
			return nil, errors.WithStack(err)
		}
		if err != nil {
			svc.removeImage(ctx, bc)
			return nil, err
		}
		return bc, nil
	}
}

// AddCopies shelves count new copies of a book. Either all of them are
// shelved or none are.
func (svc *Service) AddCopies(ctx context.Context, bookID, count int) ([]*models.BookCopy, error) {
	var created []*models.BookCopy
	err := svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var err error
		created, err = svc.AddCopiesTx(ctx, tx, bookID, count)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// AddCopiesTx is AddCopies on a caller's transaction. When it fails, the
// images it rendered are removed and the caller is expected to roll back.
func (svc *Service) AddCopiesTx(ctx context.Context, tx bun.IDB, bookID, count int) ([]*models.BookCopy, error) {
	if count < 1 {
		return nil, errcodes.ValidationError("Count must be at least 1.")
	}
	created := make([]*models.BookCopy, 0, count)
	for i := 0; i < count; i++ {
		bc, err := svc.createCopy(ctx, tx, bookID)
		if err != nil {
			for _, c := range created {
				svc.removeImage(ctx, c)
			}
			return nil, err
		}
		created = append(created, bc)
	}
	return created, nil
}

// SaveCopy inserts or updates a copy. A copy that has a barcode but no image
// gets its image rendered and stored first, and a barcode that is already
// assigned can not be replaced.
func (svc *Service) SaveCopy(ctx context.Context, bc *models.BookCopy) error {
	return svc.saveCopy(ctx, svc.db, bc)
}

func (svc *Service) saveCopy(ctx context.Context, db bun.IDB, bc *models.BookCopy) error {
	if bc.Barcode != nil && !barcodes.Valid(*bc.Barcode) {
		return errcodes.ValidationError("Barcode should contain only digits.")
	}

	if bc.ID != 0 {
		current := &models.BookCopy{}
		err := db.NewSelect().Model(current).Where("bc.id = ?", bc.ID).Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errcodes.NotFound("Copy")
			}
			return errors.WithStack(err)
		}
		if current.HasBarcode() && (!bc.HasBarcode() || *bc.Barcode != *current.Barcode) {
			return errcodes.ValidationError("Barcode cannot be changed once assigned.")
		}
		if current.HasBarcode() && current.BarcodeImage != nil && bc.BarcodeImage == nil {
			bc.BarcodeImage = current.BarcodeImage
		}
	}

	if bc.NeedsBarcodeImage() {
		if err := svc.renderImage(bc); err != nil {
			return err
		}
	}

	now := time.Now()
	if bc.CreatedAt.IsZero() {
		bc.CreatedAt = now
	}
	bc.UpdatedAt = now

	if bc.ID == 0 {
		_, err := db.NewInsert().Model(bc).Returning("*").Exec(ctx)
		return errors.WithStack(err)
	}

	_, err := db.NewUpdate().
		Model(bc).
		Column("barcode", "barcode_image", "updated_at").
		WherePK().
		Exec(ctx)
	return errors.WithStack(err)
}

// removeImage deletes the image of a copy that was never committed.
func (svc *Service) removeImage(ctx context.Context, bc *models.BookCopy) {
	if bc.BarcodeImage == nil {
		return
	}
	if err := svc.store.Remove(*bc.BarcodeImage); err != nil {
		logger.FromContext(ctx).Warn("failed to remove barcode image", logger.Data{"ref": *bc.BarcodeImage, "error": err.Error()})
	}
	bc.BarcodeImage = nil
}

func (svc *Service) renderImage(bc *models.BookCopy) error {
	png, err := svc.generator.Render(*bc.Barcode)
	if err != nil {
		return errors.WithStack(err)
	}
	ref, err := svc.store.Save(storage.DirBarcodes, barcodes.Filename(*bc.Barcode), png)
	if err != nil {
		return errors.WithStack(err)
	}
	bc.BarcodeImage = &ref
	return nil
}

// AssignBarcode gives a copy without a barcode a fresh one.
func (svc *Service) AssignBarcode(ctx context.Context, copyID int) (*models.BookCopy, error) {
	bc, err := svc.RetrieveCopy(ctx, RetrieveCopyOptions{ID: &copyID})
	if err != nil {
		return nil, err
	}
	if bc.HasBarcode() {
		return nil, errcodes.PreconditionFailed("Copy already has a barcode.")
	}

	code, err := svc.generator.GenerateUnique(ctx, BarcodeExists(svc.db))
	if err != nil {
		return nil, err
	}
	bc.Barcode = &code
	bc.BarcodeImage = nil
	if err := svc.SaveCopy(ctx, bc); err != nil {
		return nil, err
	}
	return bc, nil
}

// AssignMissingBarcodes assigns barcodes to every copy that has none and
// returns how many it assigned.
func (svc *Service) AssignMissingBarcodes(ctx context.Context) (int, error) {
	var ids []int
	err := svc.db.NewSelect().
		Model((*models.BookCopy)(nil)).
		Column("id").
		Where("barcode IS NULL OR barcode = ''").
		Order("id ASC").
		Scan(ctx, &ids)
	if err != nil {
		return 0, errors.WithStack(err)
	}

	for i, id := range ids {
		if _, err := svc.AssignBarcode(ctx, id); err != nil {
			return i, err
		}
	}
	return len(ids), nil
}

// BackfillImages renders images for copies whose barcode has no image, or
// whose image file has gone missing, and returns how many it rendered.
func (svc *Service) BackfillImages(ctx context.Context) (int, error) {
	log := logger.FromContext(ctx)

	var copies []*models.BookCopy
	err := svc.db.NewSelect().
		Model(&copies).
		Where("bc.barcode IS NOT NULL AND bc.barcode != ''").
		Order("bc.id ASC").
		Scan(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}

	rendered := 0
	for _, bc := range copies {
		if !bc.NeedsBarcodeImage() && svc.store.Exists(*bc.BarcodeImage) {
			continue
		}
		if err := svc.renderImage(bc); err != nil {
			return rendered, err
		}
		if err := svc.SaveCopy(ctx, bc); err != nil {
			return rendered, err
		}
		log.Debug("rendered barcode image", logger.Data{"copy_id": bc.ID, "barcode": *bc.Barcode})
		rendered++
	}
	return rendered, nil
}

// BarcodeImage returns the PNG for a copy's barcode, rendering and storing it
// if it is missing.
func (svc *Service) BarcodeImage(ctx context.Context, copyID int) ([]byte, error) {
	bc, err := svc.RetrieveCopy(ctx, RetrieveCopyOptions{ID: &copyID})
	if err != nil {
		return nil, err
	}
	if !bc.HasBarcode() {
		return nil, errcodes.NotFound("Barcode")
	}

	if !bc.NeedsBarcodeImage() {
		data, err := svc.store.Read(*bc.BarcodeImage)
		if err == nil {
			return data, nil
		}
		logger.FromContext(ctx).Warn("barcode image missing, rendering again", logger.Data{"copy_id": bc.ID, "ref": *bc.BarcodeImage})
	}

	if err := svc.renderImage(bc); err != nil {
		return nil, err
	}
	if err := svc.SaveCopy(ctx, bc); err != nil {
		return nil, err
	}
	return svc.store.Read(*bc.BarcodeImage)
}

func (svc *Service) RetrieveCopy(ctx context.Context, opts RetrieveCopyOptions) (*models.BookCopy, error) {
	bc := &models.BookCopy{}

	q := svc.db.
		NewSelect().
		Model(bc).
		Relation("Book").
		Relation("Book.Author")

	if opts.ID != nil {
		q = q.Where("bc.id = ?", *opts.ID)
	}
	if opts.Barcode != nil {
		q = q.Where("bc.barcode = ?", *opts.Barcode)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Copy")
		}
		return nil, errors.WithStack(err)
	}

	return bc, nil
}

func (svc *Service) ListCopies(ctx context.Context, opts ListCopiesOptions) ([]*models.BookCopy, error) {
	c, _, err := svc.listCopiesWithTotal(ctx, opts)
	return c, errors.WithStack(err)
}

func (svc *Service) ListCopiesWithTotal(ctx context.Context, opts ListCopiesOptions) ([]*models.BookCopy, int, error) {
	opts.includeTotal = true
	return svc.listCopiesWithTotal(ctx, opts)
}

func (svc *Service) listCopiesWithTotal(ctx context.Context, opts ListCopiesOptions) ([]*models.BookCopy, int, error) {
	var copies []*models.BookCopy
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&copies).
		Relation("Book").
		Order("bc.id ASC")

	if opts.BookID != nil {
		q = q.Where("bc.book_id = ?", *opts.BookID)
	}
	if opts.Available != nil {
		q = q.Where("bc.is_available = ?", *opts.Available)
	}
	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}

	if opts.includeTotal {
		total, err = q.ScanAndCount(ctx)
	} else {
		err = q.Scan(ctx)
	}
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	return copies, total, nil
}

// DeleteCopy removes a copy with its loans and its barcode image.
func (svc *Service) DeleteCopy(ctx context.Context, copyID int) error {
	var imageRef *string

	err := svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		bc := &models.BookCopy{}
		err := tx.NewSelect().Model(bc).Where("bc.id = ?", copyID).Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errcodes.NotFound("Copy")
			}
			return errors.WithStack(err)
		}
		imageRef = bc.BarcodeImage

		_, err = tx.NewDelete().
			Model((*models.BorrowRecord)(nil)).
			Where("book_copy_id = ?", copyID).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = tx.NewDelete().
			Model((*models.BookCopy)(nil)).
			Where("id = ?", copyID).
			Exec(ctx)
		return errors.WithStack(err)
	})
	if err != nil {
		return err
	}

	if imageRef != nil {
		if err := svc.store.Remove(*imageRef); err != nil {
			logger.FromContext(ctx).Err(err).Warn("failed to remove barcode image")
		}
	}
	return nil
}
