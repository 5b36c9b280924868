package circulation

import (
	"github.com/shishobooks/circulate/pkg/errcodes"
	"github.com/shishobooks/circulate/pkg/models"
)

const (
	MessageBorrowed        = "You borrowed a book successfully."
	MessageReturned        = "You returned a book successfully."
	MessageAlreadyBorrowed = "You've already borrowed this book. You can't do it again!"
	MessageAlreadyReturned = "You've already returned this book!"
	MessageOutOfStock      = "Sorry, there is not enough book in the library!"
	MessageCopyUnavailable = "This copy is already borrowed."
	MessageInLibrary       = "This copy is in the library."
)

// decideBorrow checks whether a copy can be lent. open is the copy's open
// record, if any, and openForBorrower is the open record it has with the
// borrower asking for it.
func decideBorrow(bc *models.BookCopy, open, openForBorrower *models.BorrowRecord) error {
	if openForBorrower != nil {
		return errcodes.PreconditionFailed(MessageAlreadyBorrowed)
	}
	if !bc.IsAvailable || open != nil {
		return errcodes.PreconditionFailed(MessageCopyUnavailable)
	}
	return nil
}

func decideReturn(record *models.BorrowRecord) error {
	if !record.IsOpen() {
		return errcodes.PreconditionFailed(MessageAlreadyReturned)
	}
	return nil
}

// resolveRentedDays applies the configured default when no loan length was
// asked for.
func resolveRentedDays(requested, fallback int) (int, error) {
	if requested < 0 {
		return 0, errcodes.ValidationError("Rented days must be positive.")
	}
	if requested == 0 {
		if fallback <= 0 {
			return models.DefaultRentedDays, nil
		}
		return fallback, nil
	}
	return requested, nil
}
