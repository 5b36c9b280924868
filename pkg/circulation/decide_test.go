package circulation

import (
	"testing"
	"time"

	"github.com/shishobooks/circulate/pkg/errcodes"
	"github.com/shishobooks/circulate/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecideBorrow(t *testing.T) {
	t.Parallel()

	available := &models.BookCopy{ID: 1, IsAvailable: true}
	out := &models.BookCopy{ID: 1, IsAvailable: false}
	open := &models.BorrowRecord{ID: 7, BookCopyID: 1, BorrowerID: 2}

	tests := []struct {
		name            string
		copy            *models.BookCopy
		open            *models.BorrowRecord
		openForBorrower *models.BorrowRecord
		message         string
	}{
		{"available copy", available, nil, nil, ""},
		{"copy is out", out, open, nil, MessageCopyUnavailable},
		{"flag out of step with records", available, open, nil, MessageCopyUnavailable},
		{"borrower already holds it", out, open, open, MessageAlreadyBorrowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := decideBorrow(tt.copy, tt.open, tt.openForBorrower)
			if tt.message == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errcodes.HasCode(err, errcodes.CodePreconditionFailed))
			assert.Equal(t, tt.message, err.Error())
		})
	}
}

func TestDecideReturn(t *testing.T) {
	t.Parallel()

	assert.NoError(t, decideReturn(&models.BorrowRecord{}))

	returned := time.Now()
	err := decideReturn(&models.BorrowRecord{ReturnedAt: &returned})
	assert.True(t, errcodes.HasCode(err, errcodes.CodePreconditionFailed))
}

func TestResolveRentedDays(t *testing.T) {
	t.Parallel()

	days, err := resolveRentedDays(0, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, days)

	days, err = resolveRentedDays(0, 0)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultRentedDays, days)

	days, err = resolveRentedDays(10, 5)
	require.NoError(t, err)
	assert.Equal(t, 10, days)

	_, err = resolveRentedDays(-1, 5)
	assert.True(t, errcodes.HasCode(err, errcodes.CodeValidationError))
}
