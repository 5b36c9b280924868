package circulation

import (
	"github.com/shishobooks/circulate/pkg/fees"
	"github.com/shishobooks/circulate/pkg/models"
)

const (
	ActionBorrow = "borrow"
	ActionReturn = "return"
	ActionTrack  = "track"
)

// TransactionPayload is a desk transaction against a scanned barcode.
type TransactionPayload struct {
	Code       string `json:"code" form:"code" mod:"trim" validate:"required,barcode"`
	Action     string `json:"action" form:"action" mod:"trim,lcase" validate:"required,oneof=borrow return track"`
	BorrowerID *int   `json:"borrower_id,omitempty" form:"borrower_id" validate:"required_if=Action borrow,omitempty,min=1"`
	RentedDays int    `json:"rented_days,omitempty" form:"rented_days" validate:"min=0,max=365"`
}

type BorrowPayload struct {
	RentedDays int `json:"rented_days,omitempty" form:"rented_days" validate:"min=0,max=365"`
}

type ListLoansQuery struct {
	Limit      int   `query:"limit" json:"limit,omitempty" default:"24" validate:"min=1,max=100"`
	Offset     int   `query:"offset" json:"offset,omitempty" validate:"min=0"`
	BorrowerID *int  `query:"borrower_id" json:"borrower_id,omitempty" validate:"omitempty,min=1"`
	CopyID     *int  `query:"copy_id" json:"copy_id,omitempty" validate:"omitempty,min=1"`
	BookID     *int  `query:"book_id" json:"book_id,omitempty" validate:"omitempty,min=1"`
	Open       *bool `query:"open" json:"open,omitempty"`
}

// TransactionResponse is what the desk sees after a scan.
type TransactionResponse struct {
	Action  string               `json:"action"`
	Level   string               `json:"level"`
	Message string               `json:"message"`
	Record  *models.BorrowRecord `json:"record,omitempty"`
	Fee     *fees.Breakdown      `json:"fee,omitempty"`
	Status  *Status              `json:"status,omitempty"`
}
