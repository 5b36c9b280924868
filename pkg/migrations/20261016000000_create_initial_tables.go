package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`
			CREATE TABLE roles (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				name TEXT NOT NULL UNIQUE
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE permissions (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				role_id INTEGER NOT NULL REFERENCES roles (id) ON DELETE CASCADE,
				resource TEXT NOT NULL,
				operation TEXT NOT NULL,
				UNIQUE (role_id, resource, operation)
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE users (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				username TEXT NOT NULL,
				email TEXT,
				password_hash TEXT NOT NULL,
				role_id INTEGER NOT NULL REFERENCES roles (id),
				is_active BOOLEAN NOT NULL DEFAULT TRUE
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE UNIQUE INDEX ux_users_username ON users (username COLLATE NOCASE)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE authors (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				name TEXT NOT NULL
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE books (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				title TEXT NOT NULL,
				author_id INTEGER NOT NULL REFERENCES authors (id) ON DELETE CASCADE,
				image_filename TEXT,
				daily_rent TEXT NOT NULL DEFAULT '0'
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		// Titles are unique regardless of case.
		_, err = db.Exec(`CREATE UNIQUE INDEX ux_books_title ON books (title COLLATE NOCASE)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_books_author_id ON books (author_id)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE book_copies (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				book_id INTEGER NOT NULL REFERENCES books (id) ON DELETE CASCADE,
				barcode TEXT UNIQUE,
				barcode_image TEXT,
				is_available BOOLEAN NOT NULL DEFAULT TRUE
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_book_copies_book_id ON book_copies (book_id)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE borrow_records (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				book_copy_id INTEGER NOT NULL REFERENCES book_copies (id) ON DELETE CASCADE,
				borrower_id INTEGER NOT NULL REFERENCES users (id) ON DELETE CASCADE,
				rented_days INTEGER NOT NULL DEFAULT 3 CHECK (rented_days > 0),
				borrowed_at TIMESTAMPTZ NOT NULL,
				returned_at TIMESTAMPTZ,
				total_fee TEXT NOT NULL DEFAULT '0'
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		// One open loan per copy and borrower. Closed loans keep distinct
		// returned_at values, so history for the same pair is allowed.
		_, err = db.Exec(`CREATE UNIQUE INDEX ux_borrow_records_open_copy_borrower ON borrow_records (book_copy_id, borrower_id) WHERE returned_at IS NULL`)
		if err != nil {
			return errors.WithStack(err)
		}
		// At most one open loan per copy at all.
		_, err = db.Exec(`CREATE UNIQUE INDEX ux_borrow_records_open_copy ON borrow_records (book_copy_id) WHERE returned_at IS NULL`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_borrow_records_borrower_id ON borrow_records (borrower_id)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_borrow_records_borrowed_at ON borrow_records (borrowed_at)`)
		return errors.WithStack(err)
	}

	down := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`
			DROP TABLE IF EXISTS borrow_records;
			DROP TABLE IF EXISTS book_copies;
			DROP TABLE IF EXISTS books;
			DROP TABLE IF EXISTS authors;
			DROP TABLE IF EXISTS users;
			DROP TABLE IF EXISTS permissions;
			DROP TABLE IF EXISTS roles;
		`)
		return errors.WithStack(err)
	}

	Migrations.MustRegister(up, down)
}
