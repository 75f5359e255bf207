package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/tensrai/dashboard-api/internal/data/database"
	"github.com/tensrai/dashboard-api/internal/data/pgxutil"
	domainauth "github.com/tensrai/dashboard-api/internal/domain/auth"
	apperrors "github.com/tensrai/dashboard-api/internal/errors"
	"github.com/tensrai/dashboard-api/internal/ports"
)

const userColumns = `id::text AS id, email, display_name, role, is_active, must_reset_password,
	password_hash, temp_password_hash, temp_password_expiry, created_at, updated_at`

// userRow mirrors the users table.
type userRow struct {
	ID                 string     `db:"id"`
	Email              string     `db:"email"`
	DisplayName        string     `db:"display_name"`
	Role               string     `db:"role"`
	IsActive           bool       `db:"is_active"`
	MustResetPassword  bool       `db:"must_reset_password"`
	PasswordHash       string     `db:"password_hash"`
	TempPasswordHash   string     `db:"temp_password_hash"`
	TempPasswordExpiry *time.Time `db:"temp_password_expiry"`
	CreatedAt          time.Time  `db:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at"`
}

func (r userRow) toDomain() *domainauth.User {
	return &domainauth.User{
		ID:                 r.ID,
		Email:              r.Email,
		DisplayName:        r.DisplayName,
		Role:               domainauth.Role(r.Role),
		IsActive:           r.IsActive,
		MustResetPassword:  r.MustResetPassword,
		PasswordHash:       r.PasswordHash,
		TempPasswordHash:   r.TempPasswordHash,
		TempPasswordExpiry: r.TempPasswordExpiry,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

// UserRepo provides database operations for dashboard accounts.
type UserRepo struct {
	DB *sql.DB
	// Now stamps created_at/updated_at; tests replace it.
	Now func() time.Time
}

// NewUserRepo creates a UserRepo on the system clock.
func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{DB: db, Now: time.Now}
}

func (r *UserRepo) now() time.Time {
	if r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now().UTC()
}

var _ ports.UserRepository = (*UserRepo)(nil)

// NormalizeEmail is the canonical form used for storage and lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create inserts a new account.
func (r *UserRepo) Create(ctx context.Context, p ports.CreateUserParams) (*domainauth.User, error) {
	email := NormalizeEmail(p.Email)
	if email == "" {
		return nil, apperrors.ValidationField("email", "email is required")
	}
	role := p.Role
	if role == "" {
		role = domainauth.RoleUser
	}

	now := r.now()
	u, err := r.queryOne(ctx, `
		INSERT INTO users (
			email, display_name, role, must_reset_password, password_hash,
			temp_password_hash, temp_password_expiry, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING `+userColumns,
		email, strings.TrimSpace(p.DisplayName), string(role), p.MustResetPassword,
		p.PasswordHash, p.TempPasswordHash, p.TempPasswordExpiry, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// GetByID retrieves an account by ID.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*domainauth.User, error) {
	u, err := r.queryOne(ctx, `SELECT `+userColumns+` FROM users WHERE id::text = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

// GetByEmail retrieves an account by email, case-insensitively.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domainauth.User, error) {
	u, err := r.queryOne(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = $1`, NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// List retrieves accounts ordered by email with pagination.
func (r *UserRepo) List(ctx context.Context, opts ports.UserListOptions) ([]*domainauth.User, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	offset := max(opts.Offset, 0)

	query, args := database.NewListQuery("users", userColumns,
		database.WithOrderBy("email", false),
		database.WithOrderBy("id", false),
		database.WithLimit(limit),
		database.WithOffset(offset),
	).Build()

	var rows []userRow
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		res, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		rows, err = pgx.CollectRows(res, pgx.RowToStructByName[userRow])
		return err
	}); err != nil {
		return nil, fmt.Errorf("list users: %w", apperrors.MapDBError(err))
	}

	out := make([]*domainauth.User, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

// UpdatePassword sets the permanent password, clears temporary password state and
// optionally updates the display name when displayName is non-empty.
func (r *UserRepo) UpdatePassword(ctx context.Context, id, passwordHash, displayName string) (*domainauth.User, error) {
	u, err := r.queryOne(ctx, `
		UPDATE users SET
			password_hash = $2,
			temp_password_hash = '',
			temp_password_expiry = NULL,
			must_reset_password = FALSE,
			display_name = COALESCE(NULLIF($3, ''), display_name),
			updated_at = $4
		WHERE id::text = $1
		RETURNING `+userColumns,
		id, passwordHash, strings.TrimSpace(displayName), r.now(),
	)
	if err != nil {
		return nil, fmt.Errorf("update password: %w", err)
	}
	return u, nil
}

// SetTempPassword issues a temporary password and forces a reset on next sign-in.
func (r *UserRepo) SetTempPassword(ctx context.Context, id, tempHash string, expiry time.Time) (*domainauth.User, error) {
	u, err := r.queryOne(ctx, `
		UPDATE users SET
			temp_password_hash = $2,
			temp_password_expiry = $3,
			must_reset_password = TRUE,
			updated_at = $4
		WHERE id::text = $1
		RETURNING `+userColumns,
		id, tempHash, expiry.UTC(), r.now(),
	)
	if err != nil {
		return nil, fmt.Errorf("set temp password: %w", err)
	}
	return u, nil
}

// SetRole changes an account's role.
func (r *UserRepo) SetRole(ctx context.Context, id string, role domainauth.Role) (*domainauth.User, error) {
	u, err := r.queryOne(ctx, `UPDATE users SET role = $2, updated_at = $3 WHERE id::text = $1 RETURNING `+userColumns,
		id, string(role), r.now())
	if err != nil {
		return nil, fmt.Errorf("set role: %w", err)
	}
	return u, nil
}

// SetActive activates or deactivates an account.
func (r *UserRepo) SetActive(ctx context.Context, id string, active bool) (*domainauth.User, error) {
	u, err := r.queryOne(ctx, `UPDATE users SET is_active = $2, updated_at = $3 WHERE id::text = $1 RETURNING `+userColumns,
		id, active, r.now())
	if err != nil {
		return nil, fmt.Errorf("set active: %w", err)
	}
	return u, nil
}

// UpsertSSO links an SSO subject to the account with the same email, creating it when absent.
// The role follows the IdP groups; the active flag is never changed here.
func (r *UserRepo) UpsertSSO(ctx context.Context, subject, email, displayName string, role domainauth.Role) (*domainauth.User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, apperrors.ValidationField("email", "email is required")
	}
	now := r.now()
	u, err := r.queryOne(ctx, `
		INSERT INTO users (email, display_name, role, sso_subject, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $5)
		ON CONFLICT ((lower(email))) DO UPDATE SET
			sso_subject = COALESCE(EXCLUDED.sso_subject, users.sso_subject),
			display_name = COALESCE(NULLIF(users.display_name, ''), EXCLUDED.display_name),
			role = EXCLUDED.role,
			updated_at = EXCLUDED.updated_at
		RETURNING `+userColumns,
		email, strings.TrimSpace(displayName), string(role), subject, now,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert sso user: %w", err)
	}
	return u, nil
}

// queryOne runs a single-row query and maps not-found and unique violations to repository sentinels.
func (r *UserRepo) queryOne(ctx context.Context, query string, args ...any) (*domainauth.User, error) {
	var row userRow
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		res, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		row, err = pgx.CollectOneRow(res, pgx.RowToStructByName[userRow])
		return err
	})
	if err == nil {
		return row.toDomain(), nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	mapped := apperrors.MapDBError(err)
	if apperrors.IsConflict(mapped) {
		return nil, errors.Join(ErrEmailExists, mapped)
	}
	return nil, mapped
}
