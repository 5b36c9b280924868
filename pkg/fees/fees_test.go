package fees

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func loanOf(rent string, days int) Loan {
	return Loan{
		DailyRent:  decimal.RequireFromString(rent),
		RentedDays: days,
		BorrowedAt: t0,
	}
}

func TestCalculate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		loan        Loan
		now         time.Time
		overdue     bool
		overdueDays int
		base        string
		overdueFee  string
		total       string
	}{
		{
			name:       "returned early",
			loan:       loanOf("2.00", 3),
			now:        t0.Add(2 * day),
			base:       "6",
			overdueFee: "0",
			total:      "6",
		},
		{
			name:        "two days overdue",
			loan:        loanOf("2.00", 3),
			now:         t0.Add(5 * day),
			overdue:     true,
			overdueDays: 2,
			base:        "6",
			overdueFee:  "8",
			total:       "14",
		},
		{
			name:       "exactly at due date",
			loan:       loanOf("2.00", 3),
			now:        t0.Add(3 * day),
			base:       "6",
			overdueFee: "0",
			total:      "6",
		},
		{
			name:       "past due on the same calendar day",
			loan:       loanOf("2.00", 3),
			now:        t0.Add(3*day + time.Hour),
			overdue:    true,
			base:       "6",
			overdueFee: "0",
			total:      "6",
		},
		{
			name:        "past due across one midnight",
			loan:        loanOf("1.25", 1),
			now:         t0.Add(day + 14*time.Hour + time.Minute),
			overdue:     true,
			overdueDays: 1,
			base:        "1.25",
			overdueFee:  "2.5",
			total:       "3.75",
		},
		{
			name:       "free book",
			loan:       loanOf("0", 3),
			now:        t0.Add(10 * day),
			overdue:    true,
			base:       "0",
			overdueFee: "0",
			total:      "0",
			// overdueDays is still counted
			overdueDays: 7,
		},
		{
			name:        "cents do not drift",
			loan:        loanOf("0.10", 3),
			now:         t0.Add(6 * day),
			overdue:     true,
			overdueDays: 3,
			base:        "0.3",
			overdueFee:  "0.6",
			total:       "0.9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := Calculate(tt.loan, tt.now, time.UTC)

			assert.Equal(t, t0.Add(time.Duration(tt.loan.RentedDays)*day), b.DueDate)
			assert.Equal(t, tt.overdue, b.IsOverdue)
			assert.Equal(t, tt.overdueDays, b.OverdueDays)
			assert.True(t, decimal.RequireFromString(tt.base).Equal(b.BaseFee), "base fee %s", b.BaseFee)
			assert.True(t, decimal.RequireFromString(tt.overdueFee).Equal(b.OverdueFee), "overdue fee %s", b.OverdueFee)
			assert.True(t, decimal.RequireFromString(tt.total).Equal(b.Total), "total %s", b.Total)
		})
	}
}

func TestCalculate_TimeZone(t *testing.T) {
	t.Parallel()

	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	// Due at 22:30 UTC on March 5, 23:30 in Berlin.
	loan := Loan{
		DailyRent:  decimal.RequireFromString("1.00"),
		RentedDays: 3,
		BorrowedAt: time.Date(2026, 3, 2, 22, 30, 0, 0, time.UTC),
	}
	// 23:15 UTC is still March 5 in UTC but March 6 in Berlin.
	now := time.Date(2026, 3, 5, 23, 15, 0, 0, time.UTC)

	assert.Equal(t, 0, Calculate(loan, now, time.UTC).OverdueDays)
	assert.Equal(t, 1, Calculate(loan, now, berlin).OverdueDays)
}

func TestCalculate_NilLocation(t *testing.T) {
	t.Parallel()

	loan := loanOf("2.00", 3)
	now := t0.Add(5 * day)
	assert.Equal(t, Calculate(loan, now, time.UTC), Calculate(loan, now, nil))
}

func TestCalculate_NonDecreasing(t *testing.T) {
	t.Parallel()

	loan := loanOf("3.50", 4)
	previous := decimal.Zero
	for h := 0; h <= 24*20; h += 7 {
		total := Calculate(loan, t0.Add(time.Duration(h)*time.Hour), time.UTC).Total
		assert.True(t, total.GreaterThanOrEqual(previous), "total dropped to %s at %dh", total, h)
		previous = total
	}
}

func TestCalculate_Reproducible(t *testing.T) {
	t.Parallel()

	loan := loanOf("2.00", 3)
	returnedAt := t0.Add(5*day + 3*time.Hour)

	first := Calculate(loan, returnedAt, time.UTC)
	second := Calculate(loan, returnedAt, time.UTC)
	assert.Equal(t, first, second)
}

func TestSnapshot(t *testing.T) {
	t.Parallel()

	returnedAt := t0.Add(5 * day)

	t.Run("unchanged rent reproduces the fee", func(t *testing.T) {
		loan := loanOf("2.00", 3)
		want := Calculate(loan, returnedAt, time.UTC)

		got, changed := Snapshot(loan, returnedAt, time.UTC, want.Total)
		assert.False(t, changed)
		assert.Equal(t, want, got)
	})

	t.Run("changed rent keeps the frozen total", func(t *testing.T) {
		// Frozen at 2.00 a day: 3 days base plus 2 overdue days at double rate.
		frozen := decimal.RequireFromString("14.00")

		got, changed := Snapshot(loanOf("5.00", 3), returnedAt, time.UTC, frozen)
		assert.True(t, changed)
		assert.True(t, frozen.Equal(got.Total))
		assert.True(t, decimal.NewFromInt(6).Equal(got.BaseFee), got.BaseFee.String())
		assert.True(t, decimal.NewFromInt(8).Equal(got.OverdueFee), got.OverdueFee.String())
		assert.Equal(t, 2, got.OverdueDays)
		assert.True(t, got.IsOverdue)
	})

	t.Run("zero rented days puts everything in the base fee", func(t *testing.T) {
		frozen := decimal.RequireFromString("1.00")

		got, changed := Snapshot(loanOf("3.00", 0), t0, time.UTC, frozen)
		assert.True(t, changed)
		assert.True(t, frozen.Equal(got.BaseFee))
		assert.True(t, got.OverdueFee.IsZero())
	})
}

func TestBreakdown_MarshalJSON(t *testing.T) {
	t.Parallel()

	b := Calculate(loanOf("2.00", 3), t0.Add(2*day), time.UTC)

	data, err := b.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"base_fee":"6.00"`)
	assert.Contains(t, string(data), `"overdue_fee":"0.00"`)
	assert.Contains(t, string(data), `"total":"6.00"`)
	assert.Contains(t, string(data), `"overdue_days":0`)
}
