package books

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shishobooks/circulate/pkg/errcodes"
	"github.com/shishobooks/circulate/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

const (
	stockExpr     = "(SELECT COUNT(*) FROM book_copies AS c WHERE c.book_id = b.id AND c.is_available = TRUE) AS stock"
	copyCountExpr = "(SELECT COUNT(*) FROM book_copies AS c WHERE c.book_id = b.id) AS copy_count"
)

// MaxDailyRent is the largest rent a book can carry: two integer digits and
// two decimal places.
var MaxDailyRent = decimal.RequireFromString("99.99")

type RetrieveBookOptions struct {
	ID    *int
	Title *string
}

type ListBooksOptions struct {
	Limit         *int
	Offset        *int
	AuthorID      *int
	Search        *string
	AvailableOnly bool

	includeTotal bool
}

type UpdateBookOptions struct {
	Columns []string
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

// ValidateDailyRent rejects negative amounts, amounts above MaxDailyRent, and
// amounts with more than two decimal places.
func ValidateDailyRent(rent decimal.Decimal) error {
	if rent.IsNegative() || rent.GreaterThan(MaxDailyRent) || !rent.Equal(rent.Truncate(2)) {
		return errcodes.ValidationError("Daily rent must be between 0 and 99.99 with at most 2 decimal places.")
	}
	return nil
}

// validate checks everything about a book that can be checked before it is
// written. excludeID skips the book itself in the title check.
func validate(ctx context.Context, db bun.IDB, book *models.Book, excludeID int) error {
	book.Title = strings.TrimSpace(book.Title)
	if book.Title == "" {
		return errcodes.ValidationError("Title cannot be empty.")
	}
	if err := ValidateDailyRent(book.DailyRent); err != nil {
		return err
	}

	taken, err := db.NewSelect().
		Model((*models.Book)(nil)).
		Where("title = ? COLLATE NOCASE", book.Title).
		Where("id != ?", excludeID).
		Exists(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	if taken {
		return errcodes.ValidationError("A book with this title already exists.")
	}

	authorExists, err := db.NewSelect().
		Model((*models.Author)(nil)).
		Where("id = ?", book.AuthorID).
		Exists(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	if !authorExists {
		return errcodes.NotFound("Author")
	}

	return nil
}

func (svc *Service) CreateBook(ctx context.Context, book *models.Book) error {
	return svc.CreateBookWithStock(ctx, book, nil)
}

// StockFunc shelves the first copies of a book that is being created.
type StockFunc func(ctx context.Context, tx bun.IDB, bookID int) error

// CreateBookWithStock creates a book and runs stock in the same transaction,
// so a failure while shelving copies leaves no book behind.
func (svc *Service) CreateBookWithStock(ctx context.Context, book *models.Book, stock StockFunc) error {
	return svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if err := validate(ctx, tx, book, 0); err != nil {
			return err
		}

		now := time.Now()
		if book.CreatedAt.IsZero() {
			book.CreatedAt = now
		}
		book.UpdatedAt = book.CreatedAt

		_, err := tx.
			NewInsert().
			Model(book).
			Returning("*").
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		if stock == nil {
			return nil
		}
		return stock(ctx, tx, book.ID)
	})
}

func (svc *Service) RetrieveBook(ctx context.Context, opts RetrieveBookOptions) (*models.Book, error) {
	book := &models.Book{}

	q := svc.db.
		NewSelect().
		Model(book).
		ColumnExpr("b.*").
		ColumnExpr(stockExpr).
		ColumnExpr(copyCountExpr).
		Relation("Author").
		Relation("Copies", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("bc.id ASC")
		})

	if opts.ID != nil {
		q = q.Where("b.id = ?", *opts.ID)
	}
	if opts.Title != nil {
		q = q.Where("b.title = ? COLLATE NOCASE", *opts.Title)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Book")
		}
		return nil, errors.WithStack(err)
	}

	return book, nil
}

func (svc *Service) ListBooks(ctx context.Context, opts ListBooksOptions) ([]*models.Book, error) {
	b, _, err := svc.listBooksWithTotal(ctx, opts)
	return b, errors.WithStack(err)
}

func (svc *Service) ListBooksWithTotal(ctx context.Context, opts ListBooksOptions) ([]*models.Book, int, error) {
	opts.includeTotal = true
	return svc.listBooksWithTotal(ctx, opts)
}

func (svc *Service) listBooksWithTotal(ctx context.Context, opts ListBooksOptions) ([]*models.Book, int, error) {
	var books []*models.Book
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&books).
		ColumnExpr("b.*").
		ColumnExpr(stockExpr).
		ColumnExpr(copyCountExpr).
		Relation("Author").
		Order("b.title ASC")

	if opts.AuthorID != nil {
		q = q.Where("b.author_id = ?", *opts.AuthorID)
	}
	if opts.Search != nil && *opts.Search != "" {
		search := "%" + strings.ToLower(*opts.Search) + "%"
		q = q.Where("(LOWER(b.title) LIKE ? OR LOWER(author.name) LIKE ?)", search, search)
	}
	if opts.AvailableOnly {
		q = q.Where("EXISTS (SELECT 1 FROM book_copies AS c WHERE c.book_id = b.id AND c.is_available = TRUE)")
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

	return books, total, nil
}

func (svc *Service) UpdateBook(ctx context.Context, book *models.Book, opts UpdateBookOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	if err := validate(ctx, svc.db, book, book.ID); err != nil {
		return err
	}

	now := time.Now()
	book.UpdatedAt = now
	columns := append(opts.Columns, "updated_at")

	_, err := svc.db.
		NewUpdate().
		Model(book).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errcodes.NotFound("Book")
		}
		return errors.WithStack(err)
	}
	return nil
}

// DeleteBook deletes a book, its copies, and every loan of those copies. It
// returns the storage references of the files that belonged to them so the
// caller can remove them once the rows are gone.
func (svc *Service) DeleteBook(ctx context.Context, bookID int) ([]string, error) {
	var refs []string

	err := svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		book := &models.Book{}
		err := tx.NewSelect().Model(book).Where("b.id = ?", bookID).Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errcodes.NotFound("Book")
			}
			return errors.WithStack(err)
		}
		if book.ImageFilename != nil {
			refs = append(refs, *book.ImageFilename)
		}

		var copies []*models.BookCopy
		err = tx.NewSelect().Model(&copies).Where("bc.book_id = ?", bookID).Scan(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		for _, bc := range copies {
			if bc.BarcodeImage != nil {
				refs = append(refs, *bc.BarcodeImage)
			}
		}

		copyIDs := tx.NewSelect().
			Model((*models.BookCopy)(nil)).
			Column("id").
			Where("book_id = ?", bookID)

		_, err = tx.NewDelete().
			Model((*models.BorrowRecord)(nil)).
			Where("book_copy_id IN (?)", copyIDs).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = tx.NewDelete().
			Model((*models.BookCopy)(nil)).
			Where("book_id = ?", bookID).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = tx.NewDelete().
			Model((*models.Book)(nil)).
			Where("id = ?", bookID).
			Exec(ctx)
		return errors.WithStack(err)
	})
	if err != nil {
		return nil, err
	}

	return refs, nil
}

// SetCover records where a book's cover image is stored.
func (svc *Service) SetCover(ctx context.Context, bookID int, ref string) error {
	res, err := svc.db.NewUpdate().
		Model((*models.Book)(nil)).
		Set("image_filename = ?", ref).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", bookID).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errcodes.NotFound("Book")
	}
	return nil
}
