package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-shop-api/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

const accountColumns = `id, username, email, password_hash, image, image_id, is_active,
	otp, otp_expires_at, role, deleted_at, created_at, updated_at`

// AccountRepo stores accounts in the accounts table.
type AccountRepo struct {
	db DBTX
}

func NewAccountRepo(db DBTX) *AccountRepo {
	return &AccountRepo{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(s scanner, extra ...any) (*domain.Account, error) {
	a := &domain.Account{}
	dest := []any{
		&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.Image, &a.ImageID, &a.IsActive,
		&a.OTP, &a.OTPExpiresAt, &a.Role, &a.DeletedAt, &a.CreatedAt, &a.UpdatedAt,
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return a, nil
}

// mapErr translates driver errors into domain sentinels.
func mapErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, domain.ErrDuplicate)
	}
	return fmt.Errorf("db error: %w", err)
}

// ExistsByUsernameOrEmail checks both unique fields in one lookup.
func (r *AccountRepo) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM accounts WHERE username = $1 OR email = $2)`,
		username, email).Scan(&exists)
	if err != nil {
		return false, mapErr(err)
	}
	return exists, nil
}

// Create inserts an account. A unique-constraint violation yields domain.ErrDuplicate.
func (r *AccountRepo) Create(ctx context.Context, n domain.NewAccount) (*domain.Account, error) {
	query := `INSERT INTO accounts (username, email, password_hash, image, is_active, otp, otp_expires_at, role)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + accountColumns

	a, err := scanAccount(r.db.QueryRowContext(ctx, query,
		n.Username, n.Email, n.PasswordHash, n.Image, n.IsActive, n.OTP, n.OTPExpiresAt, n.Role))
	if err != nil {
		return nil, mapErr(err)
	}
	return a, nil
}

// Delete hard-deletes an account. Deleting a missing row is not an error.
func (r *AccountRepo) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id); err != nil {
		return mapErr(err)
	}
	return nil
}

func (r *AccountRepo) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return a, nil
}

func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email))
	if err != nil {
		return nil, mapErr(err)
	}
	return a, nil
}

// ActivateWithOTP matches email, code and expiry in a single conditional
// update, activating the account and clearing the code. No match yields
// domain.ErrNotFound whether the code was wrong or stale.
func (r *AccountRepo) ActivateWithOTP(ctx context.Context, email, otp string, now time.Time) (*domain.Account, error) {
	query := `UPDATE accounts
		SET is_active = TRUE, otp = NULL, otp_expires_at = NULL, updated_at = $3
		WHERE email = $1 AND otp = $2 AND otp_expires_at > $3
		  AND is_active = FALSE AND deleted_at IS NULL
		RETURNING ` + accountColumns

	a, err := scanAccount(r.db.QueryRowContext(ctx, query, email, otp, now))
	if err != nil {
		return nil, mapErr(err)
	}
	return a, nil
}

// SetPendingOTP replaces the code on an account still awaiting verification.
func (r *AccountRepo) SetPendingOTP(ctx context.Context, email, otp string, expiresAt time.Time) (*domain.Account, error) {
	query := `UPDATE accounts
		SET otp = $2, otp_expires_at = $3, updated_at = now()
		WHERE email = $1 AND is_active = FALSE AND deleted_at IS NULL
		RETURNING ` + accountColumns

	a, err := scanAccount(r.db.QueryRowContext(ctx, query, email, otp, expiresAt))
	if err != nil {
		return nil, mapErr(err)
	}
	return a, nil
}

func (r *AccountRepo) UpdatePassword(ctx context.Context, id int64, hash string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET password_hash = $2, updated_at = now() WHERE id = $1`, id, hash)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}

// UpdateProfile applies the non-nil fields of upd.
func (r *AccountRepo) UpdateProfile(ctx context.Context, id int64, upd domain.ProfileUpdate) (*domain.Account, error) {
	query := `UPDATE accounts
		SET username = COALESCE($2, username),
		    email = COALESCE($3, email),
		    image = COALESCE($4, image),
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + accountColumns

	a, err := scanAccount(r.db.QueryRowContext(ctx, query, id, upd.Username, upd.Email, upd.Image))
	if err != nil {
		return nil, mapErr(err)
	}
	return a, nil
}

func (r *AccountRepo) UpdateImage(ctx context.Context, id int64, img domain.Image) (*domain.Account, error) {
	query := `UPDATE accounts SET image = $2, image_id = $3, updated_at = now()
		WHERE id = $1
		RETURNING ` + accountColumns

	a, err := scanAccount(r.db.QueryRowContext(ctx, query, id, img.URL, img.ContentID))
	if err != nil {
		return nil, mapErr(err)
	}
	return a, nil
}

// SoftDelete deactivates the account and stamps deleted_at once.
func (r *AccountRepo) SoftDelete(ctx context.Context, id int64, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts
		 SET is_active = FALSE, otp = NULL, otp_expires_at = NULL,
		     deleted_at = COALESCE(deleted_at, $2), updated_at = $2
		 WHERE id = $1`, id, now)
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}

// ListActive pages through active accounts ordered by id and returns the total count.
func (r *AccountRepo) ListActive(ctx context.Context, limit, offset int) ([]domain.Account, int, error) {
	return r.list(ctx,
		`SELECT `+accountColumns+`, COUNT(*) OVER() FROM accounts
		 WHERE is_active = TRUE AND deleted_at IS NULL
		 ORDER BY id LIMIT $1 OFFSET $2`,
		limit, offset)
}

func (r *AccountRepo) ListByRole(ctx context.Context, role domain.Role, limit, offset int) ([]domain.Account, int, error) {
	return r.list(ctx,
		`SELECT `+accountColumns+`, COUNT(*) OVER() FROM accounts
		 WHERE role = $3 AND deleted_at IS NULL
		 ORDER BY id LIMIT $1 OFFSET $2`,
		limit, offset, role)
}

// Search matches username or email case-insensitively.
func (r *AccountRepo) Search(ctx context.Context, term string, limit, offset int) ([]domain.Account, int, error) {
	return r.list(ctx,
		`SELECT `+accountColumns+`, COUNT(*) OVER() FROM accounts
		 WHERE deleted_at IS NULL AND (username ILIKE $3 OR email ILIKE $3)
		 ORDER BY id LIMIT $1 OFFSET $2`,
		limit, offset, "%"+escapeLike(term)+"%")
}

func (r *AccountRepo) list(ctx context.Context, query string, args ...any) ([]domain.Account, int, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, mapErr(err)
	}
	defer rows.Close()

	var (
		out   []domain.Account
		total int
	)
	for rows.Next() {
		a, err := scanAccount(rows, &total)
		if err != nil {
			return nil, 0, mapErr(err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapErr(err)
	}
	return out, total, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return mapErr(err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
