package models

import (
	"time"

	"github.com/uptrace/bun"
)

// BookCopy is one physical, individually barcoded unit of a Book.
type BookCopy struct {
	bun.BaseModel `bun:"table:book_copies,alias:bc"`

	ID           int       `bun:",pk,nullzero" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	BookID       int       `bun:",nullzero" json:"book_id"`
	Book         *Book     `bun:"rel:belongs-to,join:book_id=id" json:"book,omitempty"`
	Barcode      *string   `json:"barcode"`
	BarcodeImage *string   `json:"barcode_image"`
	IsAvailable  bool      `json:"is_available"`
}

// HasBarcode reports whether a barcode has been assigned. Once assigned it
// never changes.
func (bc *BookCopy) HasBarcode() bool {
	return bc.Barcode != nil && *bc.Barcode != ""
}

// NeedsBarcodeImage reports whether the copy has a barcode but no rendered
// image for it yet.
func (bc *BookCopy) NeedsBarcodeImage() bool {
	return bc.HasBarcode() && (bc.BarcodeImage == nil || *bc.BarcodeImage == "")
}
