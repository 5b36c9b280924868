// Package circulation keeps the ledger of who has which copy. Every
// transition runs in one transaction and flips the copy's availability in
// the same commit as the record it opens or closes.
package circulation

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/circulate/pkg/config"
	"github.com/shishobooks/circulate/pkg/errcodes"
	"github.com/shishobooks/circulate/pkg/fees"
	"github.com/shishobooks/circulate/pkg/models"
	"github.com/uptrace/bun"
)

type BorrowOptions struct {
	// RentedDays is the loan length. Zero means the configured default.
	RentedDays int
}

type RetrieveRecordOptions struct {
	ID         *int
	BorrowerID *int
}

type ListRecordsOptions struct {
	Limit      *int
	Offset     *int
	BorrowerID *int
	BookCopyID *int
	BookID     *int
	Open       *bool

	includeTotal bool
}

// Receipt is a record together with what it costs. For an open record the
// fee is a preview as of now; for a closed one it is the frozen fee.
type Receipt struct {
	Record *models.BorrowRecord `json:"record"`
	Fee    fees.Breakdown       `json:"fee"`
	// RentChanged is set on a closed record's summary when the book's daily
	// rent no longer reproduces the fee frozen at return.
	RentChanged bool `json:"rent_changed,omitempty"`
}

// Status is where a copy is right now.
type Status struct {
	Copy      *models.BookCopy     `json:"copy"`
	InLibrary bool                 `json:"in_library"`
	Record    *models.BorrowRecord `json:"record,omitempty"`
	Holder    *models.User         `json:"holder,omitempty"`
	Fee       *fees.Breakdown      `json:"fee,omitempty"`
	Message   string               `json:"message"`
}

type Service struct {
	db                *bun.DB
	repo              Repository
	defaultRentedDays int
	loc               *time.Location
	now               func() time.Time
}

func NewService(db *bun.DB, cfg *config.Config) *Service {
	return &Service{
		db:                db,
		repo:              NewRepository(),
		defaultRentedDays: cfg.DefaultRentedDays,
		loc:               cfg.FeeLocation(),
		now:               time.Now,
	}
}

func isOpenLoanConflict(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: borrow_records.")
}

// Borrow lends a copy to a borrower.
func (svc *Service) Borrow(ctx context.Context, copyID, borrowerID int, opts BorrowOptions) (*models.BorrowRecord, error) {
	rentedDays, err := resolveRentedDays(opts.RentedDays, svc.defaultRentedDays)
	if err != nil {
		return nil, err
	}

	var record *models.BorrowRecord
	err = svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		bc := &models.BookCopy{}
		err := tx.NewSelect().Model(bc).Where("bc.id = ?", copyID).Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errcodes.NotFound("Copy")
			}
			return errors.WithStack(err)
		}

		record, err = svc.lend(ctx, tx, bc, borrowerID, rentedDays)
		return err
	})
	if err != nil {
		return nil, err
	}

	logBorrow(ctx, record)
	return record, nil
}

// BorrowByBarcode lends the copy a scanned barcode belongs to.
func (svc *Service) BorrowByBarcode(ctx context.Context, barcode string, borrowerID int, opts BorrowOptions) (*models.BorrowRecord, error) {
	rentedDays, err := resolveRentedDays(opts.RentedDays, svc.defaultRentedDays)
	if err != nil {
		return nil, err
	}

	var record *models.BorrowRecord
	err = svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		bc, err := svc.findCopyByBarcode(ctx, tx, barcode)
		if err != nil {
			return err
		}

		record, err = svc.lend(ctx, tx, bc, borrowerID, rentedDays)
		return err
	})
	if err != nil {
		return nil, err
	}

	logBorrow(ctx, record)
	return record, nil
}

// BorrowBook lends the borrower any available copy of a book, unless they
// already hold one.
func (svc *Service) BorrowBook(ctx context.Context, bookID, borrowerID int, opts BorrowOptions) (*models.BorrowRecord, error) {
	rentedDays, err := resolveRentedDays(opts.RentedDays, svc.defaultRentedDays)
	if err != nil {
		return nil, err
	}

	var record *models.BorrowRecord
	err = svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().Model((*models.Book)(nil)).Where("id = ?", bookID).Exists(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if !exists {
			return errcodes.NotFound("Book")
		}

		held, err := findOpenRecordForBook(ctx, tx, bookID, borrowerID)
		if err != nil {
			return err
		}
		if held != nil {
			return errcodes.PreconditionFailed(MessageAlreadyBorrowed)
		}

		bc, err := findAvailableCopy(ctx, tx, bookID)
		if err != nil {
			return err
		}
		if bc == nil {
			return errcodes.PreconditionFailed(MessageOutOfStock)
		}

		record, err = svc.lend(ctx, tx, bc, borrowerID, rentedDays)
		return err
	})
	if err != nil {
		return nil, err
	}

	logBorrow(ctx, record)
	return record, nil
}

// lend opens a record for bc. It must run inside a transaction.
func (svc *Service) lend(ctx context.Context, tx bun.IDB, bc *models.BookCopy, borrowerID, rentedDays int) (*models.BorrowRecord, error) {
	open, err := svc.repo.FindOpenRecordForCopy(ctx, tx, bc.ID)
	if err != nil {
		return nil, err
	}
	openForBorrower, err := svc.repo.FindOpenRecordForCopyAndBorrower(ctx, tx, bc.ID, borrowerID)
	if err != nil {
		return nil, err
	}
	if err := decideBorrow(bc, open, openForBorrower); err != nil {
		return nil, err
	}

	borrowerExists, err := tx.NewSelect().
		Model((*models.User)(nil)).
		Where("id = ?", borrowerID).
		Where("is_active = ?", true).
		Exists(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if !borrowerExists {
		return nil, errcodes.NotFound("Borrower")
	}

	now := svc.now()

	// Only one transaction can flip the copy out.
	res, err := tx.NewUpdate().
		Model((*models.BookCopy)(nil)).
		Set("is_available = ?", false).
		Set("updated_at = ?", now).
		Where("id = ?", bc.ID).
		Where("is_available = ?", true).
		Exec(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, errors.WithStack(err)
	} else if n == 0 {
		return nil, errcodes.PreconditionFailed(MessageCopyUnavailable)
	}

	record := &models.BorrowRecord{
		CreatedAt:  now,
		UpdatedAt:  now,
		BookCopyID: bc.ID,
		BorrowerID: borrowerID,
		RentedDays: rentedDays,
		BorrowedAt: now,
	}
	_, err = tx.NewInsert().Model(record).Returning("*").Exec(ctx)
	if err != nil {
		if isOpenLoanConflict(err) {
			return nil, errcodes.PreconditionFailed(MessageCopyUnavailable)
		}
		return nil, errors.WithStack(err)
	}

	bc.IsAvailable = false
	bc.UpdatedAt = now
	record.BookCopy = bc
	return record, nil
}

// Return closes a record and freezes its fee.
func (svc *Service) Return(ctx context.Context, recordID int) (*Receipt, error) {
	return svc.returnRecord(ctx, RetrieveRecordOptions{ID: &recordID})
}

// ReturnOwn closes a record on behalf of the borrower who holds it. Records
// belonging to someone else are reported as missing.
func (svc *Service) ReturnOwn(ctx context.Context, recordID, borrowerID int) (*Receipt, error) {
	return svc.returnRecord(ctx, RetrieveRecordOptions{ID: &recordID, BorrowerID: &borrowerID})
}

func (svc *Service) returnRecord(ctx context.Context, opts RetrieveRecordOptions) (*Receipt, error) {
	var receipt *Receipt
	err := svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		record, err := retrieveRecord(ctx, tx, opts)
		if err != nil {
			return err
		}
		receipt, err = svc.close(ctx, tx, record)
		return err
	})
	if err != nil {
		return nil, err
	}

	logReturn(ctx, receipt)
	return receipt, nil
}

// ReturnByBarcode closes the open record of the copy a scanned barcode
// belongs to.
func (svc *Service) ReturnByBarcode(ctx context.Context, barcode string) (*Receipt, error) {
	var receipt *Receipt
	err := svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		bc, err := svc.findCopyByBarcode(ctx, tx, barcode)
		if err != nil {
			return err
		}

		record, err := svc.repo.FindOpenRecordForCopy(ctx, tx, bc.ID)
		if err != nil {
			return err
		}
		if record == nil {
			return errcodes.PreconditionFailed("This copy is not borrowed.")
		}
		record.BookCopy = bc

		receipt, err = svc.close(ctx, tx, record)
		return err
	})
	if err != nil {
		return nil, err
	}

	logReturn(ctx, receipt)
	return receipt, nil
}

// ReturnBook closes the borrower's open loan of a book.
func (svc *Service) ReturnBook(ctx context.Context, bookID, borrowerID int) (*Receipt, error) {
	var receipt *Receipt
	err := svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().Model((*models.Book)(nil)).Where("id = ?", bookID).Exists(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if !exists {
			return errcodes.NotFound("Book")
		}

		held, err := findOpenRecordForBook(ctx, tx, bookID, borrowerID)
		if err != nil {
			return err
		}
		if held == nil {
			return errcodes.PreconditionFailed(MessageAlreadyReturned)
		}

		record, err := retrieveRecord(ctx, tx, RetrieveRecordOptions{ID: &held.ID})
		if err != nil {
			return err
		}
		receipt, err = svc.close(ctx, tx, record)
		return err
	})
	if err != nil {
		return nil, err
	}

	logReturn(ctx, receipt)
	return receipt, nil
}

// close returns the record's copy to the shelf. record.BookCopy.Book must be
// loaded. It must run inside a transaction.
func (svc *Service) close(ctx context.Context, tx bun.IDB, record *models.BorrowRecord) (*Receipt, error) {
	if err := decideReturn(record); err != nil {
		return nil, err
	}

	now := svc.now()
	fee := fees.Calculate(loanOf(record), now, svc.loc)

	res, err := tx.NewUpdate().
		Model((*models.BorrowRecord)(nil)).
		Set("returned_at = ?", now).
		Set("total_fee = ?", fee.Total.StringFixed(fees.Places)).
		Set("updated_at = ?", now).
		Where("id = ?", record.ID).
		Where("returned_at IS NULL").
		Exec(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, errors.WithStack(err)
	} else if n == 0 {
		return nil, errcodes.PreconditionFailed(MessageAlreadyReturned)
	}

	_, err = tx.NewUpdate().
		Model((*models.BookCopy)(nil)).
		Set("is_available = ?", true).
		Set("updated_at = ?", now).
		Where("id = ?", record.BookCopyID).
		Exec(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	record.ReturnedAt = &now
	record.TotalFee = fee.Total
	record.UpdatedAt = now
	record.BookCopy.IsAvailable = true
	record.BookCopy.UpdatedAt = now

	return &Receipt{Record: record, Fee: fee}, nil
}

// Track reports who holds a copy.
func (svc *Service) Track(ctx context.Context, copyID int) (*Status, error) {
	bc := &models.BookCopy{}
	err := svc.db.NewSelect().
		Model(bc).
		Relation("Book").
		Where("bc.id = ?", copyID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Copy")
		}
		return nil, errors.WithStack(err)
	}
	return svc.track(ctx, bc)
}

// TrackByBarcode reports who holds the copy a scanned barcode belongs to.
func (svc *Service) TrackByBarcode(ctx context.Context, barcode string) (*Status, error) {
	bc, err := svc.findCopyByBarcode(ctx, svc.db, barcode)
	if err != nil {
		return nil, err
	}
	return svc.track(ctx, bc)
}

func (svc *Service) track(ctx context.Context, bc *models.BookCopy) (*Status, error) {
	record, err := svc.repo.FindOpenRecordForCopy(ctx, svc.db, bc.ID)
	if err != nil {
		return nil, err
	}

	status := &Status{Copy: bc}
	if record == nil {
		status.InLibrary = true
		status.Message = MessageInLibrary
		return status, nil
	}

	record.BookCopy = bc
	fee := fees.Calculate(loanOf(record), svc.now(), svc.loc)
	status.Record = record
	status.Holder = record.Borrower
	status.Fee = &fee
	status.Message = "This copy is borrowed."
	if record.Borrower != nil {
		status.Message = "This copy is borrowed by " + record.Borrower.Username + "."
	}
	return status, nil
}

// Summary returns a record with its fee: a preview as of now while it is
// open and the frozen fee once it is closed.
func (svc *Service) Summary(ctx context.Context, opts RetrieveRecordOptions) (*Receipt, error) {
	record, err := retrieveRecord(ctx, svc.db, opts)
	if err != nil {
		return nil, err
	}

	if record.ReturnedAt == nil {
		return &Receipt{Record: record, Fee: fees.Calculate(loanOf(record), svc.now(), svc.loc)}, nil
	}

	fee, changed := fees.Snapshot(loanOf(record), *record.ReturnedAt, svc.loc, record.TotalFee)
	if changed {
		logger.FromContext(ctx).Warn("daily rent changed since return", logger.Data{
			"record_id": record.ID,
			"total_fee": record.TotalFee.StringFixed(fees.Places),
		})
	}
	return &Receipt{Record: record, Fee: fee, RentChanged: changed}, nil
}

func (svc *Service) RetrieveRecord(ctx context.Context, opts RetrieveRecordOptions) (*models.BorrowRecord, error) {
	return retrieveRecord(ctx, svc.db, opts)
}

func retrieveRecord(ctx context.Context, db bun.IDB, opts RetrieveRecordOptions) (*models.BorrowRecord, error) {
	record := &models.BorrowRecord{}

	q := db.NewSelect().
		Model(record).
		Relation("BookCopy").
		Relation("BookCopy.Book").
		Relation("Borrower")

	if opts.ID != nil {
		q = q.Where("br.id = ?", *opts.ID)
	}
	if opts.BorrowerID != nil {
		q = q.Where("br.borrower_id = ?", *opts.BorrowerID)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Borrow record")
		}
		return nil, errors.WithStack(err)
	}

	return record, nil
}

func (svc *Service) ListRecords(ctx context.Context, opts ListRecordsOptions) ([]*models.BorrowRecord, error) {
	r, _, err := svc.listRecordsWithTotal(ctx, opts)
	return r, errors.WithStack(err)
}

func (svc *Service) ListRecordsWithTotal(ctx context.Context, opts ListRecordsOptions) ([]*models.BorrowRecord, int, error) {
	opts.includeTotal = true
	return svc.listRecordsWithTotal(ctx, opts)
}

func (svc *Service) listRecordsWithTotal(ctx context.Context, opts ListRecordsOptions) ([]*models.BorrowRecord, int, error) {
	var records []*models.BorrowRecord
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&records).
		Relation("BookCopy").
		Relation("BookCopy.Book").
		Relation("Borrower").
		Order("br.borrowed_at DESC", "br.id DESC")

	if opts.BorrowerID != nil {
		q = q.Where("br.borrower_id = ?", *opts.BorrowerID)
	}
	if opts.BookCopyID != nil {
		q = q.Where("br.book_copy_id = ?", *opts.BookCopyID)
	}
	if opts.BookID != nil {
		q = q.Where("br.book_copy_id IN (SELECT id FROM book_copies WHERE book_id = ?)", *opts.BookID)
	}
	if opts.Open != nil {
		if *opts.Open {
			q = q.Where("br.returned_at IS NULL")
		} else {
			q = q.Where("br.returned_at IS NOT NULL")
		}
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

	return records, total, nil
}

func (svc *Service) findCopyByBarcode(ctx context.Context, db bun.IDB, barcode string) (*models.BookCopy, error) {
	bc, err := svc.repo.FindCopyByBarcode(ctx, db, barcode)
	if err != nil {
		return nil, err
	}
	if bc == nil {
		return nil, errcodes.NotFound("Copy")
	}
	return bc, nil
}

func loanOf(record *models.BorrowRecord) fees.Loan {
	loan := fees.Loan{
		RentedDays: record.RentedDays,
		BorrowedAt: record.BorrowedAt,
	}
	if record.BookCopy != nil && record.BookCopy.Book != nil {
		loan.DailyRent = record.BookCopy.Book.DailyRent
	}
	return loan
}

func logBorrow(ctx context.Context, record *models.BorrowRecord) {
	logger.FromContext(ctx).Info("copy borrowed", logger.Data{
		"copy_id":     record.BookCopyID,
		"record_id":   record.ID,
		"borrower_id": record.BorrowerID,
		"rented_days": record.RentedDays,
	})
}

func logReturn(ctx context.Context, receipt *Receipt) {
	logger.FromContext(ctx).Info("copy returned", logger.Data{
		"copy_id":     receipt.Record.BookCopyID,
		"record_id":   receipt.Record.ID,
		"borrower_id": receipt.Record.BorrowerID,
		"total_fee":   receipt.Fee.Total.StringFixed(fees.Places),
	})
}
