package circulation

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/shishobooks/circulate/pkg/models"
	"github.com/uptrace/bun"
)

// Repository looks up the rows a transition depends on. Every method takes
// the bun.IDB to run against so lookups can share the caller's transaction,
// and returns nil, nil when nothing matches.
type Repository interface {
	FindCopyByBarcode(ctx context.Context, db bun.IDB, barcode string) (*models.BookCopy, error)
	FindOpenRecordForCopy(ctx context.Context, db bun.IDB, copyID int) (*models.BorrowRecord, error)
	FindOpenRecordForCopyAndBorrower(ctx context.Context, db bun.IDB, copyID, borrowerID int) (*models.BorrowRecord, error)
}

type bunRepository struct{}

// NewRepository returns the Repository backed by the application database.
func NewRepository() Repository {
	return bunRepository{}
}

func optional[T any](v *T, err error) (*T, error) {
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.WithStack(err)
	}
	return v, nil
}

func (bunRepository) FindCopyByBarcode(ctx context.Context, db bun.IDB, barcode string) (*models.BookCopy, error) {
	bc := &models.BookCopy{}
	err := db.NewSelect().
		Model(bc).
		Relation("Book").
		Where("bc.barcode = ?", barcode).
		Scan(ctx)
	return optional(bc, err)
}

func (bunRepository) FindOpenRecordForCopy(ctx context.Context, db bun.IDB, copyID int) (*models.BorrowRecord, error) {
	record := &models.BorrowRecord{}
	err := db.NewSelect().
		Model(record).
		Relation("Borrower").
		Where("br.book_copy_id = ?", copyID).
		Where("br.returned_at IS NULL").
		Scan(ctx)
	return optional(record, err)
}

func (bunRepository) FindOpenRecordForCopyAndBorrower(ctx context.Context, db bun.IDB, copyID, borrowerID int) (*models.BorrowRecord, error) {
	record := &models.BorrowRecord{}
	err := db.NewSelect().
		Model(record).
		Where("br.book_copy_id = ?", copyID).
		Where("br.borrower_id = ?", borrowerID).
		Where("br.returned_at IS NULL").
		Scan(ctx)
	return optional(record, err)
}

// findOpenRecordForBook finds the borrower's open loan of any copy of a
// book.
func findOpenRecordForBook(ctx context.Context, db bun.IDB, bookID, borrowerID int) (*models.BorrowRecord, error) {
	record := &models.BorrowRecord{}
	err := db.NewSelect().
		Model(record).
		Join("JOIN book_copies AS c ON c.id = br.book_copy_id").
		Where("c.book_id = ?", bookID).
		Where("br.borrower_id = ?", borrowerID).
		Where("br.returned_at IS NULL").
		Order("br.borrowed_at DESC").
		Limit(1).
		Scan(ctx)
	return optional(record, err)
}

// findAvailableCopy picks the longest-shelved available copy of a book.
func findAvailableCopy(ctx context.Context, db bun.IDB, bookID int) (*models.BookCopy, error) {
	bc := &models.BookCopy{}
	err := db.NewSelect().
		Model(bc).
		Where("bc.book_id = ?", bookID).
		Where("bc.is_available = ?", true).
		Order("bc.id ASC").
		Limit(1).
		Scan(ctx)
	return optional(bc, err)
}
