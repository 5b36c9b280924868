package models

import (
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

const DefaultRentedDays = 3

// BorrowRecord is one loan of a copy. It is open while ReturnedAt is nil and
// closes exactly once.
type BorrowRecord struct {
	bun.BaseModel `bun:"table:borrow_records,alias:br"`

	ID         int             `bun:",pk,nullzero" json:"id"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	BookCopyID int             `bun:",nullzero" json:"book_copy_id"`
	BookCopy   *BookCopy       `bun:"rel:belongs-to,join:book_copy_id=id" json:"book_copy,omitempty"`
	BorrowerID int             `bun:",nullzero" json:"borrower_id"`
	Borrower   *User           `bun:"rel:belongs-to,join:borrower_id=id" json:"borrower,omitempty"`
	RentedDays int             `json:"rented_days"`
	BorrowedAt time.Time       `json:"borrowed_at"`
	ReturnedAt *time.Time      `json:"returned_at"`
	TotalFee   decimal.Decimal `bun:"type:text" json:"total_fee"`
}

type borrowRecordJSON BorrowRecord

func (br BorrowRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		borrowRecordJSON
		TotalFee string `json:"total_fee"`
	}{borrowRecordJSON(br), Money(br.TotalFee)})
}

func (br *BorrowRecord) IsOpen() bool {
	return br.ReturnedAt == nil
}
