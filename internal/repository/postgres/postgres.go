package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prolearn/accounts/internal/domain"
	"github.com/prolearn/accounts/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.UserRepository         = (*Repository)(nil)
	_ repository.OTPRepository          = (*Repository)(nil)
	_ repository.RevokedTokenRepository = (*Repository)(nil)
)

const userColumns = `id, email, full_name, role, password_hash, is_active, is_staff, is_superuser, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.Role, &u.PasswordHash,
		&u.IsActive, &u.IsStaff, &u.IsSuperuser, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts an account.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users (id, email, full_name, role, password_hash, is_active, is_staff, is_superuser, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.pool.Exec(ctx, query, user.ID, user.Email, user.FullName, user.Role,
		user.PasswordHash, user.IsActive, user.IsStaff, user.IsSuperuser, user.CreatedAt, user.UpdatedAt)
	if isUniqueViolation(err) {
		return repository.ErrDuplicateEmail
	}
	return err
}

// GetUserByEmail fetches an account by normalized email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.pool.QueryRow(ctx, query, email))
}

// GetUserByID fetches an account by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

// ListUsersByRole returns accounts holding any of the given roles.
func (r *Repository) ListUsersByRole(ctx context.Context, roles []domain.Role) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE role = ANY($1) ORDER BY created_at`
	values := make([]string, len(roles))
	for i, role := range roles {
		values[i] = string(role)
	}
	rows, err := r.pool.Query(ctx, query, values)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Email, &u.FullName, &u.Role, &u.PasswordHash,
			&u.IsActive, &u.IsStaff, &u.IsSuperuser, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateUser applies a partial update and returns the resulting row.
func (r *Repository) UpdateUser(ctx context.Context, id string, update domain.UserUpdate) (*domain.User, error) {
	sets := []string{}
	args := []any{id}
	appendSet := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if update.Email != nil {
		appendSet("email", *update.Email)
	}
	if update.FullName != nil {
		appendSet("full_name", *update.FullName)
	}
	if update.Role != nil {
		appendSet("role", string(*update.Role))
	}
	if update.IsActive != nil {
		appendSet("is_active", *update.IsActive)
	}
	if len(sets) == 0 {
		return r.GetUserByID(ctx, id)
	}
	appendSet("updated_at", time.Now().UTC())

	query := `UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + userColumns
	user, err := scanUser(r.pool.QueryRow(ctx, query, args...))
	if isUniqueViolation(err) {
		return nil, repository.ErrDuplicateEmail
	}
	return user, err
}

// SetUserActive flips or sets the active flag.
func (r *Repository) SetUserActive(ctx context.Context, id string, active bool) (*domain.User, error) {
	query := `UPDATE users SET is_active = $2, updated_at = $3 WHERE id = $1 RETURNING ` + userColumns
	return scanUser(r.pool.QueryRow(ctx, query, id, active, time.Now().UTC()))
}

// DeleteUser removes an account.
func (r *Repository) DeleteUser(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// CreateOTP stores a one-time password row.
func (r *Repository) CreateOTP(ctx context.Context, otp *domain.OTP) error {
	const query = `INSERT INTO otps (email, code, created_at) VALUES ($1, $2, $3) RETURNING id`
	return r.pool.QueryRow(ctx, query, otp.Email, otp.Code, otp.CreatedAt).Scan(&otp.ID)
}

// LatestOTPByEmail returns the most recently created code for the email.
func (r *Repository) LatestOTPByEmail(ctx context.Context, email string) (*domain.OTP, error) {
	const query = `SELECT id, email, code, created_at FROM otps
		WHERE email = $1 ORDER BY created_at DESC, id DESC LIMIT 1`
	var o domain.OTP
	if err := r.pool.QueryRow(ctx, query, email).Scan(&o.ID, &o.Email, &o.Code, &o.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

// DeleteOTPsByEmail removes every code issued to the email.
func (r *Repository) DeleteOTPsByEmail(ctx context.Context, email string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM otps WHERE email = $1`, email)
	return err
}

// PurgeExpiredOTPs deletes rows created before the cutoff.
func (r *Repository) PurgeExpiredOTPs(ctx context.Context, before time.Time) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM otps WHERE created_at < $1`, before)
	return err
}

// RevokeToken adds a token ID to the denylist until its natural expiry.
func (r *Repository) RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	const query = `INSERT INTO revoked_tokens (jti, expires_at) VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING`
	_, err := r.pool.Exec(ctx, query, jti, expiresAt)
	return err
}

// IsTokenRevoked reports whether the token ID sits on the denylist.
func (r *Repository) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE jti = $1 AND expires_at > NOW())`
	var revoked bool
	if err := r.pool.QueryRow(ctx, query, jti).Scan(&revoked); err != nil {
		return false, err
	}
	return revoked, nil
}

// PurgeExpiredTokens drops denylist entries for tokens already past expiry.
func (r *Repository) PurgeExpiredTokens(ctx context.Context, before time.Time) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM revoked_tokens WHERE expires_at < $1`, before)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
