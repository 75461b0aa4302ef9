package core

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRecord mirrors the users table row. PasswordHash is never empty for a
// persisted user and doubles as the recovery-token signing key.
type UserRecord struct {
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}

// UserListItem is a projection for administrative user listing (no password hash).
type UserListItem struct {
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// UserRepository defines persistence operations for users. Lookups return
// (nil, nil) for absent users; infrastructure faults carry the dependency
// kind. Save/Create surface email-uniqueness violations as conflicts.
type UserRepository interface {
	FindByUsername(ctx context.Context, username string) (*UserRecord, error)
	FindByEmail(ctx context.Context, email string) (*UserRecord, error)
	Create(ctx context.Context, user UserRecord) error
	Update(ctx context.Context, user UserRecord) error
	HasAdministrator(ctx context.Context) (bool, error)
	List(ctx context.Context, page, perPage int) ([]UserListItem, int, error)
}

// PgUserRepository implements UserRepository using pgxpool.
type PgUserRepository struct {
	db *pgxpool.Pool
}

func NewPgUserRepository(db *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{db: db}
}

func (r *PgUserRepository) FindByUsername(ctx context.Context, username string) (*UserRecord, error) {
	const q = `SELECT username, email, password_hash, role, created_at FROM users WHERE username=$1`
	return r.findOne(ctx, q, username)
}

func (r *PgUserRepository) FindByEmail(ctx context.Context, email string) (*UserRecord, error) {
	const q = `SELECT username, email, password_hash, role, created_at FROM users WHERE email=$1`
	return r.findOne(ctx, q, email)
}

func (r *PgUserRepository) findOne(ctx context.Context, query string, arg string) (*UserRecord, error) {
	var (
		u    UserRecord
		role string
	)
	if err := r.db.QueryRow(ctx, query, arg).Scan(&u.Username, &u.Email, &u.PasswordHash, &role, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, WrapError(KindDependency, "error.internal", err)
	}
	parsed, ok := ParseRole(role)
	if !ok {
		return nil, NewError(KindDependency, "error.internal")
	}
	u.Role = parsed
	return &u, nil
}

func (r *PgUserRepository) Create(ctx context.Context, user UserRecord) error {
	const q = `INSERT INTO users (username, email, password_hash, role) VALUES ($1,$2,$3,$4)`
	if _, err := r.db.Exec(ctx, q, user.Username, user.Email, user.PasswordHash, string(user.Role)); err != nil {
		return mapUserWriteError(err)
	}
	return nil
}

func (r *PgUserRepository) Update(ctx context.Context, user UserRecord) error {
	const q = `UPDATE users SET email=$2, password_hash=$3, role=$4 WHERE username=$1`
	tag, err := r.db.Exec(ctx, q, user.Username, user.Email, user.PasswordHash, string(user.Role))
	if err != nil {
		return mapUserWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return NewError(KindNotFound, "error.userNotFound")
	}
	return nil
}

// mapUserWriteError classifies unique violations (the email/username indexes)
// as conflicts; anything else is an infrastructure fault.
func mapUserWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return WrapError(KindConflict, "error.conflictingEmailAddress", err)
	}
	return WrapError(KindDependency, "error.internal", err)
}

func (r *PgUserRepository) HasAdministrator(ctx context.Context) (bool, error) {
	const q = `SELECT 1 FROM users WHERE role='ADMINISTRATOR' LIMIT 1`
	var one int
	if err := r.db.QueryRow(ctx, q).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, WrapError(KindDependency, "error.internal", err)
	}
	return true, nil
}

// List returns paginated users without password hash.
func (r *PgUserRepository) List(ctx context.Context, page, perPage int) ([]UserListItem, int, error) {
	if page <= 0 || perPage <= 0 {
		return nil, 0, NewError(KindValidation, "error.internal")
	}
	const countQ = `SELECT COUNT(*) FROM users`
	var total int
	if err := r.db.QueryRow(ctx, countQ).Scan(&total); err != nil {
		return nil, 0, WrapError(KindDependency, "error.internal", err)
	}
	rows, err := r.db.Query(ctx, `SELECT username, email, role, created_at FROM users ORDER BY username LIMIT $1 OFFSET $2`, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, WrapError(KindDependency, "error.internal", err)
	}
	defer rows.Close()
	items := make([]UserListItem, 0, perPage)
	for rows.Next() {
		var u UserListItem
		if err := rows.Scan(&u.Username, &u.Email, &u.Role, &u.CreatedAt); err != nil {
			return nil, 0, WrapError(KindDependency, "error.internal", err)
		}
		items = append(items, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, WrapError(KindDependency, "error.internal", err)
	}
	return items, total, nil
}
