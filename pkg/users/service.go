package users

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shishobooks/circulate/pkg/auth"
	"github.com/shishobooks/circulate/pkg/errcodes"
	"github.com/shishobooks/circulate/pkg/models"
	"github.com/uptrace/bun"
)

const openLoansExpr = "(SELECT COUNT(*) FROM borrow_records AS br WHERE br.borrower_id = u.id AND br.returned_at IS NULL) AS open_loans"

// Service manages the people who can borrow books and the staff who lend
// them.
type Service struct {
	db *bun.DB
}

// NewService creates a new users service.
func NewService(db *bun.DB) *Service {
	return &Service{db: db}
}

// CreateUserOptions contains options for creating a user.
type CreateUserOptions struct {
	Username string
	Email    *string
	Password string
	// RoleName defaults to member.
	RoleName string
}

// Create creates a new user.
func (s *Service) Create(ctx context.Context, opts CreateUserOptions) (*models.User, error) {
	exists, err := s.db.NewSelect().
		Model((*models.User)(nil)).
		Where("username = ? COLLATE NOCASE", opts.Username).
		Exists(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if exists {
		return nil, errcodes.ValidationError("A user with that username already exists.")
	}

	if opts.RoleName == "" {
		opts.RoleName = models.RoleMember
	}
	role := &models.Role{}
	err = s.db.NewSelect().Model(role).Where("name = ?", opts.RoleName).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.ValidationError("Invalid role.")
		}
		return nil, errors.WithStack(err)
	}

	hashedPassword, err := auth.HashPassword(opts.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &models.User{
		CreatedAt:    now,
		UpdatedAt:    now,
		Username:     opts.Username,
		Email:        opts.Email,
		PasswordHash: hashedPassword,
		RoleID:       role.ID,
		IsActive:     true,
	}

	_, err = s.db.NewInsert().Model(user).Exec(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return s.Retrieve(ctx, user.ID)
}

// Retrieve gets a user by ID along with how many books they have out.
func (s *Service) Retrieve(ctx context.Context, id int) (*models.User, error) {
	user := &models.User{}
	err := s.db.NewSelect().
		Model(user).
		ColumnExpr("u.*").
		ColumnExpr(openLoansExpr).
		Relation("Role").
		Relation("Role.Permissions").
		Where("u.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("User")
		}
		return nil, errors.WithStack(err)
	}
	return user, nil
}

// ListOptions contains options for listing users.
type ListOptions struct {
	Limit  int
	Offset int
	Search *string
	// RoleName narrows the list to one role, e.g. members at the desk.
	RoleName   *string
	ActiveOnly bool
}

// List returns a paginated list of users.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]*models.User, int, error) {
	users := []*models.User{}

	query := s.db.NewSelect().
		Model(&users).
		ColumnExpr("u.*").
		ColumnExpr(openLoansExpr).
		Relation("Role").
		Order("u.username ASC")

	if opts.Search != nil && *opts.Search != "" {
		query = query.Where("LOWER(u.username) LIKE ?", "%"+strings.ToLower(*opts.Search)+"%")
	}
	if opts.RoleName != nil {
		query = query.Where("role.name = ?", *opts.RoleName)
	}
	if opts.ActiveOnly {
		query = query.Where("u.is_active = ?", true)
	}
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		query = query.Offset(opts.Offset)
	}

	total, err := query.ScanAndCount(ctx)
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	return users, total, nil
}

// UpdateOptions contains options for updating a user.
type UpdateOptions struct {
	Columns []string
}

// Update updates a user.
func (s *Service) Update(ctx context.Context, user *models.User, opts UpdateOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	user.UpdatedAt = time.Now()
	columns := append(opts.Columns, "updated_at")
	_, err := s.db.NewUpdate().
		Model(user).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: users.username") {
			return errcodes.ValidationError("A user with that username already exists.")
		}
		return errors.WithStack(err)
	}
	return nil
}

// ResetPassword changes a user's password.
func (s *Service) ResetPassword(ctx context.Context, userID int, newPassword string) error {
	hashedPassword, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}

	_, err = s.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("password_hash = ?", hashedPassword).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", userID).
		Exec(ctx)
	return errors.WithStack(err)
}

// VerifyPassword checks if the password is correct for a user.
func (s *Service) VerifyPassword(ctx context.Context, userID int, password string) (bool, error) {
	user := &models.User{}
	err := s.db.NewSelect().
		Model(user).
		Column("password_hash").
		Where("id = ?", userID).
		Scan(ctx)
	if err != nil {
		return false, errors.WithStack(err)
	}

	return auth.CheckPassword(password, user.PasswordHash), nil
}

// Deactivate deactivates a user (soft delete). Someone who still has books
// out can not be deactivated; their loans have to come back first.
func (s *Service) Deactivate(ctx context.Context, userID int) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		open, err := tx.NewSelect().
			Model((*models.BorrowRecord)(nil)).
			Where("borrower_id = ?", userID).
			Where("returned_at IS NULL").
			Count(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if open > 0 {
			return errcodes.PreconditionFailed("This borrower still has books out.")
		}

		res, err := tx.NewUpdate().
			Model((*models.User)(nil)).
			Set("is_active = ?", false).
			Set("updated_at = ?", time.Now()).
			Where("id = ?", userID).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errcodes.NotFound("User")
		}
		return nil
	})
}
