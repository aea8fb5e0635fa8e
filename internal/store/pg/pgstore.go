// Package pg stores accounts in PostgreSQL through the pgx stdlib driver.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"accountd.dev/internal/account"
)

const uniqueViolation = "23505"

const accountColumns = `id, username, password_hash, is_admin, is_suspended, created_at,
	suspended_at, password_changed_at, username_changed_at, profile_picture`

// Store implements account.Store on a *sql.DB.
type Store struct {
	db *sql.DB
}

var _ account.Store = (*Store)(nil)

// Open connects to dsn with pool defaults suited to a small service.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storageErr(err)
	}
	return nil
}

func (s *Store) FindByIdentity(ctx context.Context, username string) (account.Account, error) {
	row := s.db.QueryRowContext(ctx, `select `+accountColumns+` from accounts where username=$1`, username)
	return scanAccount(row)
}

func (s *Store) FindByID(ctx context.Context, id int64) (account.Account, error) {
	row := s.db.QueryRowContext(ctx, `select `+accountColumns+` from accounts where id=$1`, id)
	return scanAccount(row)
}

func (s *Store) Insert(ctx context.Context, a account.Account) (account.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		insert into accounts(username, password_hash, is_admin, is_suspended, created_at,
			suspended_at, password_changed_at, username_changed_at, profile_picture)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		returning id`,
		a.Username, a.PasswordHash, a.IsAdmin, a.IsSuspended, a.CreatedAt,
		a.SuspendedAt, a.PasswordChangedAt, a.UsernameChangedAt, a.ProfilePicture)
	if err := row.Scan(&a.ID); err != nil {
		return account.Account{}, translate(err)
	}
	return a, nil
}

// UpdateFields issues a single UPDATE ... RETURNING so the change is atomic
// per row.
func (s *Store) UpdateFields(ctx context.Context, id int64, patch account.Patch) (account.Account, error) {
	if patch.Empty() {
		return s.FindByID(ctx, id)
	}
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	if patch.Username != nil {
		add("username", *patch.Username)
	}
	if patch.PasswordHash != nil {
		add("password_hash", *patch.PasswordHash)
	}
	if patch.IsAdmin != nil {
		add("is_admin", *patch.IsAdmin)
	}
	if patch.IsSuspended != nil {
		add("is_suspended", *patch.IsSuspended)
	}
	if patch.SuspendedAt != nil {
		add("suspended_at", *patch.SuspendedAt)
	}
	if patch.PasswordChangedAt != nil {
		add("password_changed_at", *patch.PasswordChangedAt)
	}
	if patch.UsernameChangedAt != nil {
		add("username_changed_at", *patch.UsernameChangedAt)
	}
	if patch.ProfilePicture != nil {
		add("profile_picture", *patch.ProfilePicture)
	}
	args = append(args, id)
	query := fmt.Sprintf(`update accounts set %s where id=$%d returning %s`,
		strings.Join(sets, ", "), len(args), accountColumns)
	return scanAccount(s.db.QueryRowContext(ctx, query, args...))
}

func scanAccount(row *sql.Row) (account.Account, error) {
	var a account.Account
	err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.IsAdmin, &a.IsSuspended, &a.CreatedAt,
		&a.SuspendedAt, &a.PasswordChangedAt, &a.UsernameChangedAt, &a.ProfilePicture)
	if err != nil {
		return account.Account{}, translate(err)
	}
	return a, nil
}

func translate(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return account.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return account.ErrDuplicateIdentity
	}
	return storageErr(err)
}

func storageErr(err error) error {
	return fmt.Errorf("%w: %v", account.ErrStorage, err)
}
