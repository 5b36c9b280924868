// Package reports builds read-only summaries of stock and revenue.
package reports

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/shishobooks/circulate/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type BookLine struct {
	BookID         int             `bun:"book_id" json:"book_id"`
	Title          string          `bun:"title" json:"title"`
	AuthorName     string          `bun:"author_name" json:"author_name"`
	CopyCount      int             `bun:"copy_count" json:"copy_count"`
	AvailableCount int             `bun:"available_count" json:"available_count"`
	LoanCount      int             `bun:"-" json:"loan_count"`
	Revenue        decimal.Decimal `bun:"-" json:"revenue"`
}

type BorrowerLine struct {
	BorrowerID int             `json:"borrower_id"`
	Username   string          `json:"username"`
	LoanCount  int             `json:"loan_count"`
	OpenLoans  int             `json:"open_loans"`
	Revenue    decimal.Decimal `json:"revenue"`
}

type Inventory struct {
	GeneratedAt     time.Time       `json:"generated_at"`
	TotalCopies     int             `json:"total_copies"`
	AvailableCopies int             `json:"available_copies"`
	OpenLoans       int             `json:"open_loans"`
	TotalRevenue    decimal.Decimal `json:"total_revenue"`
	Books           []*BookLine     `json:"books"`
	Borrowers       []*BorrowerLine `json:"borrowers"`
}

type (
	bookLineJSON     BookLine
	borrowerLineJSON BorrowerLine
	inventoryJSON    Inventory
)

func (l BookLine) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		bookLineJSON
		Revenue string `json:"revenue"`
	}{bookLineJSON(l), models.Money(l.Revenue)})
}

func (l BorrowerLine) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		borrowerLineJSON
		Revenue string `json:"revenue"`
	}{borrowerLineJSON(l), models.Money(l.Revenue)})
}

func (inv Inventory) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		inventoryJSON
		TotalRevenue string `json:"total_revenue"`
	}{inventoryJSON(inv), models.Money(inv.TotalRevenue)})
}

// loanRow is one borrow record reduced to what the report needs.
type loanRow struct {
	BookID     int             `bun:"book_id"`
	BorrowerID int             `bun:"borrower_id"`
	Username   string          `bun:"username"`
	TotalFee   decimal.Decimal `bun:"total_fee"`
	Open       bool            `bun:"open"`
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

// Inventory reports copy counts per book and revenue per book and per
// borrower. Revenue only counts fees of returned loans.
func (svc *Service) Inventory(ctx context.Context) (*Inventory, error) {
	books := []*BookLine{}
	err := svc.db.NewSelect().
		TableExpr("books AS b").
		ColumnExpr("b.id AS book_id").
		ColumnExpr("b.title AS title").
		ColumnExpr("a.name AS author_name").
		ColumnExpr("(SELECT COUNT(*) FROM book_copies AS c WHERE c.book_id = b.id) AS copy_count").
		ColumnExpr("(SELECT COUNT(*) FROM book_copies AS c WHERE c.book_id = b.id AND c.is_available = TRUE) AS available_count").
		Join("JOIN authors AS a ON a.id = b.author_id").
		Order("b.title ASC").
		Scan(ctx, &books)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var loans []loanRow
	err = svc.db.NewSelect().
		TableExpr("borrow_records AS br").
		ColumnExpr("c.book_id AS book_id").
		ColumnExpr("br.borrower_id AS borrower_id").
		ColumnExpr("u.username AS username").
		ColumnExpr("br.total_fee AS total_fee").
		ColumnExpr("br.returned_at IS NULL AS open").
		Join("JOIN book_copies AS c ON c.id = br.book_copy_id").
		Join("JOIN users AS u ON u.id = br.borrower_id").
		Scan(ctx, &loans)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	inv := &Inventory{
		GeneratedAt:  time.Now(),
		TotalRevenue: decimal.Zero,
		Books:        books,
		Borrowers:    []*BorrowerLine{},
	}

	byBook := make(map[int]*BookLine, len(books))
	for _, b := range books {
		b.Revenue = decimal.Zero
		byBook[b.BookID] = b
		inv.TotalCopies += b.CopyCount
		inv.AvailableCopies += b.AvailableCount
	}

	byBorrower := map[int]*BorrowerLine{}
	for _, l := range loans {
		borrower, ok := byBorrower[l.BorrowerID]
		if !ok {
			borrower = &BorrowerLine{BorrowerID: l.BorrowerID, Username: l.Username, Revenue: decimal.Zero}
			byBorrower[l.BorrowerID] = borrower
			inv.Borrowers = append(inv.Borrowers, borrower)
		}
		borrower.LoanCount++

		book := byBook[l.BookID]
		if book != nil {
			book.LoanCount++
		}

		if l.Open {
			borrower.OpenLoans++
			inv.OpenLoans++
			continue
		}
		borrower.Revenue = borrower.Revenue.Add(l.TotalFee)
		if book != nil {
			book.Revenue = book.Revenue.Add(l.TotalFee)
		}
		inv.TotalRevenue = inv.TotalRevenue.Add(l.TotalFee)
	}

	sort.Slice(inv.Borrowers, func(i, j int) bool {
		a, b := inv.Borrowers[i], inv.Borrowers[j]
		if !a.Revenue.Equal(b.Revenue) {
			return a.Revenue.GreaterThan(b.Revenue)
		}
		return a.Username < b.Username
	})

	return inv, nil
}
