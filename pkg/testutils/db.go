// Package testutils holds fixtures shared by package tests and the test-only
// API endpoints used by end-to-end runs.
package testutils

import (
	"context"
	"testing"
	"time"

	"github.com/shishobooks/circulate/pkg/config"
	"github.com/shishobooks/circulate/pkg/database"
	"github.com/shishobooks/circulate/pkg/migrations"
	"github.com/shishobooks/circulate/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"
)

// Password is what CreateUser hashes for every fixture user.
const Password = "password123"

// NewDB returns a migrated in-memory database that is closed when the test
// ends.
func NewDB(t testing.TB) *bun.DB {
	t.Helper()

	db, err := database.New(config.NewForTest())
	require.NoError(t, err)

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// CreateUser inserts an active user with the given role and returns it with
// the role's permissions loaded.
func CreateUser(t testing.TB, db bun.IDB, username, roleName string) *models.User {
	t.Helper()
	ctx := context.Background()

	role := &models.Role{}
	err := db.NewSelect().Model(role).Where("name = ?", roleName).Scan(ctx)
	require.NoError(t, err)

	// MinCost keeps fixtures fast.
	hash, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	require.NoError(t, err)

	now := time.Now()
	user := &models.User{
		CreatedAt:    now,
		UpdatedAt:    now,
		Username:     username,
		PasswordHash: string(hash),
		RoleID:       role.ID,
		IsActive:     true,
	}
	_, err = db.NewInsert().Model(user).Exec(ctx)
	require.NoError(t, err)

	err = db.NewSelect().
		Model(user).
		Relation("Role").
		Relation("Role.Permissions").
		WherePK().
		Scan(ctx)
	require.NoError(t, err)

	return user
}

func CreateAuthor(t testing.TB, db bun.IDB, name string) *models.Author {
	t.Helper()

	now := time.Now()
	author := &models.Author{CreatedAt: now, UpdatedAt: now, Name: name}
	_, err := db.NewInsert().Model(author).Exec(context.Background())
	require.NoError(t, err)
	return author
}

// CreateBook inserts a book, creating an author named after it when
// authorID is zero.
func CreateBook(t testing.TB, db bun.IDB, authorID int, title, dailyRent string) *models.Book {
	t.Helper()

	if authorID == 0 {
		authorID = CreateAuthor(t, db, "Author of "+title).ID
	}

	now := time.Now()
	book := &models.Book{
		CreatedAt: now,
		UpdatedAt: now,
		Title:     title,
		AuthorID:  authorID,
		DailyRent: decimal.RequireFromString(dailyRent),
	}
	_, err := db.NewInsert().Model(book).Exec(context.Background())
	require.NoError(t, err)
	return book
}

// CreateCopy inserts an available copy. An empty barcode leaves it unassigned.
func CreateCopy(t testing.TB, db bun.IDB, bookID int, barcode string) *models.BookCopy {
	t.Helper()

	now := time.Now()
	bc := &models.BookCopy{
		CreatedAt:   now,
		UpdatedAt:   now,
		BookID:      bookID,
		IsAvailable: true,
	}
	if barcode != "" {
		bc.Barcode = &barcode
	}
	_, err := db.NewInsert().Model(bc).Exec(context.Background())
	require.NoError(t, err)
	return bc
}

// CreateOpenRecord inserts an open loan and marks the copy as out.
func CreateOpenRecord(t testing.TB, db bun.IDB, copyID, borrowerID, rentedDays int, borrowedAt time.Time) *models.BorrowRecord {
	t.Helper()
	ctx := context.Background()

	record := &models.BorrowRecord{
		CreatedAt:  borrowedAt,
		UpdatedAt:  borrowedAt,
		BookCopyID: copyID,
		BorrowerID: borrowerID,
		RentedDays: rentedDays,
		BorrowedAt: borrowedAt,
		TotalFee:   decimal.Zero,
	}
	_, err := db.NewInsert().Model(record).Exec(ctx)
	require.NoError(t, err)

	_, err = db.NewUpdate().
		Model((*models.BookCopy)(nil)).
		Set("is_available = ?", false).
		Where("id = ?", copyID).
		Exec(ctx)
	require.NoError(t, err)

	return record
}

// RequireAvailabilityConsistent fails the test if any copy's availability
// flag disagrees with whether it has an open loan.
func RequireAvailabilityConsistent(t testing.TB, db bun.IDB) {
	t.Helper()

	var mismatched []int
	err := db.NewSelect().
		Model((*models.BookCopy)(nil)).
		Column("bc.id").
		Where(`bc.is_available = EXISTS (
			SELECT 1 FROM borrow_records AS br
			WHERE br.book_copy_id = bc.id AND br.returned_at IS NULL
		)`).
		Scan(context.Background(), &mismatched)
	require.NoError(t, err)
	require.Empty(t, mismatched, "copies whose availability disagrees with their open loans")
}
