package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/tokend/internal/auth/domain"
)

type usersRepo struct {
	db dbtx
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const userColumns = `id, username, email, password_hash, roles, security_stamp,
	lockout_until, access_failed_count, disabled, created_at, updated_at`

func scanUser(s rowScanner) (domain.User, error) {
	var (
		u         domain.User
		roles     string
		lockout   sql.NullInt64
		disabled  int64
		createdAt int64
		updatedAt int64
	)
	err := s.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &roles, &u.SecurityStamp,
		&lockout, &u.AccessFailedCount, &disabled, &createdAt, &updatedAt)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	u.Roles = splitAndFilter(roles)
	u.LockoutUntil = fromNullUnix(lockout)
	u.Disabled = disabled != 0
	u.CreatedAt = fromUnix(createdAt)
	u.UpdatedAt = fromUnix(updatedAt)
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// The username column is declared COLLATE NOCASE, so equality here is
// already case-insensitive.
func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	return scanUser(row)
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = u.CreatedAt
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.PasswordHash, joinFields(u.Roles), u.SecurityStamp,
		toNullUnix(u.LockoutUntil), u.AccessFailedCount, boolToInt(u.Disabled),
		unix(u.CreatedAt), unix(u.UpdatedAt),
	)
	return mapConstraint(err)
}

func (r *usersRepo) SetUserDisabled(ctx context.Context, id string, disabled bool) error {
	return mustAffect(r.db.ExecContext(ctx,
		`UPDATE users SET disabled = ?, updated_at = ? WHERE id = ?`,
		boolToInt(disabled), unix(time.Now()), id,
	))
}

func (r *usersRepo) DeleteUser(ctx context.Context, id string) error {
	return mustAffect(r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id))
}

// RecordFailedAttempt is one UPDATE so that concurrent bad passwords cannot
// lose increments. SET expressions see the pre-update row.
func (r *usersRepo) RecordFailedAttempt(
	ctx context.Context,
	id string,
	now time.Time,
	maxAttempts int,
	lockout time.Duration,
) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE users SET
			lockout_until = CASE
				WHEN ?2 > 0 AND access_failed_count + 1 >= ?2 THEN ?3
				ELSE lockout_until
			END,
			access_failed_count = CASE
				WHEN ?2 > 0 AND access_failed_count + 1 >= ?2 THEN 0
				ELSE access_failed_count + 1
			END,
			updated_at = ?4
		WHERE id = ?1
		RETURNING `+userColumns,
		id, maxAttempts, unix(now.Add(lockout)), unix(now),
	)
	return scanUser(row)
}

func (r *usersRepo) ResetFailedAttempts(ctx context.Context, id string) error {
	return mustAffect(r.db.ExecContext(ctx,
		`UPDATE users SET access_failed_count = 0, lockout_until = NULL, updated_at = ? WHERE id = ?`,
		unix(time.Now()), id,
	))
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
