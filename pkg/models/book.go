package models

import (
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type Book struct {
	bun.BaseModel `bun:"table:books,alias:b"`

	ID            int             `bun:",pk,nullzero" json:"id"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Title         string          `bun:",nullzero" json:"title"`
	AuthorID      int             `bun:",nullzero" json:"author_id"`
	Author        *Author         `bun:"rel:belongs-to,join:author_id=id" json:"author,omitempty"`
	ImageFilename *string         `json:"image_filename"`
	DailyRent     decimal.Decimal `bun:"type:text" json:"daily_rent"`
	Copies        []*BookCopy     `bun:"rel:has-many,join:id=book_id" json:"copies,omitempty"`

	// Stock is the number of copies currently on the shelf.
	Stock     int `bun:",scanonly" json:"stock"`
	CopyCount int `bun:",scanonly" json:"copy_count"`
}

type bookJSON Book

func (b Book) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		bookJSON
		DailyRent string `json:"daily_rent"`
	}{bookJSON(b), Money(b.DailyRent)})
}

func (b *Book) IsAvailable() bool {
	return b.Stock > 0
}
