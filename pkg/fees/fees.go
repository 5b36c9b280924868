// Package fees computes what a loan costs.
package fees

import (
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/shopspring/decimal"
)

// Places is how many decimal places money is stored and shown with.
const Places = 2

// OverdueRate multiplies the daily rent for every calendar day past due.
var OverdueRate = decimal.NewFromInt(2)

const day = 24 * time.Hour

// Loan is the part of a borrow record the fee depends on.
type Loan struct {
	DailyRent  decimal.Decimal
	RentedDays int
	BorrowedAt time.Time
}

type Breakdown struct {
	DueDate     time.Time       `json:"due_date"`
	IsOverdue   bool            `json:"is_overdue"`
	OverdueDays int             `json:"overdue_days"`
	BaseFee     decimal.Decimal `json:"base_fee"`
	OverdueFee  decimal.Decimal `json:"overdue_fee"`
	Total       decimal.Decimal `json:"total"`
}

type breakdownJSON Breakdown

func (b Breakdown) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		breakdownJSON
		BaseFee    string `json:"base_fee"`
		OverdueFee string `json:"overdue_fee"`
		Total      string `json:"total"`
	}{
		breakdownJSON: breakdownJSON(b),
		BaseFee:       b.BaseFee.StringFixed(Places),
		OverdueFee:    b.OverdueFee.StringFixed(Places),
		Total:         b.Total.StringFixed(Places),
	})
}

// DueDate is the moment a loan becomes overdue.
func DueDate(borrowedAt time.Time, rentedDays int) time.Time {
	return borrowedAt.Add(time.Duration(rentedDays) * day)
}

// Calculate returns the fee for loan as of now. Overdue days are counted as
// calendar days in loc, so a loan that goes overdue late in the evening and
// comes back the next morning is charged one overdue day, and one that comes
// back later the same day is charged none. A nil loc means UTC.
//
// Calculate is pure: passing a closed record's returned_at as now reproduces
// the fee that was frozen when it was returned.
func Calculate(loan Loan, now time.Time, loc *time.Location) Breakdown {
	if loc == nil {
		loc = time.UTC
	}

	due := DueDate(loan.BorrowedAt, loan.RentedDays)
	b := Breakdown{
		DueDate:    due,
		IsOverdue:  now.After(due),
		BaseFee:    loan.DailyRent.Mul(decimal.NewFromInt(int64(loan.RentedDays))),
		OverdueFee: decimal.Zero,
	}

	if b.IsOverdue {
		b.OverdueDays = calendarDays(due.In(loc), now.In(loc))
		b.OverdueFee = loan.DailyRent.
			Mul(decimal.NewFromInt(int64(b.OverdueDays))).
			Mul(OverdueRate)
	}

	b.Total = b.BaseFee.Add(b.OverdueFee)
	return b
}

// calendarDays is the number of date boundaries between from and to, ignoring
// the time of day.
func calendarDays(from, to time.Time) int {
	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()
	start := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	end := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start) / day)
}

// Snapshot is the breakdown of a returned loan whose total was frozen at
// returnedAt. The dates and overdue days are recomputed, the total is the
// frozen one, and the base and overdue parts are split from it in proportion
// to rented days and weighted overdue days. The second result reports whether
// recomputing from loan.DailyRent gives a different total, which happens when
// the book's rent changed after the return.
func Snapshot(loan Loan, returnedAt time.Time, loc *time.Location, total decimal.Decimal) (Breakdown, bool) {
	b := Calculate(loan, returnedAt, loc)
	if b.Total.Equal(total) {
		return b, false
	}

	rented := decimal.NewFromInt(int64(loan.RentedDays))
	weight := rented.Add(decimal.NewFromInt(int64(b.OverdueDays)).Mul(OverdueRate))

	b.Total = total
	if weight.IsZero() {
		b.BaseFee = total
	} else {
		b.BaseFee = total.Mul(rented).DivRound(weight, Places)
	}
	b.OverdueFee = total.Sub(b.BaseFee)
	return b, true
}
