package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/tokend/internal/auth/domain"
	"github.com/aussiebroadwan/tokend/internal/auth/store"
)

type authorizationCodesRepo struct {
	db dbtx
}

const codeColumns = `id, code_hash, client_id, user_id, redirect_uri, scopes,
	code_challenge, code_challenge_method, expires_at, redeemed_at, created_at`

func (r *authorizationCodesRepo) CreateAuthorizationCode(ctx context.Context, code domain.AuthorizationCode) error {
	if code.CreatedAt.IsZero() {
		code.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO authorization_codes (`+codeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		code.ID, code.CodeHash, code.ClientID, code.UserID, code.RedirectURI,
		joinFields(code.Scopes), code.CodeChallenge, code.CodeChallengeMethod,
		unix(code.ExpiresAt), toNullUnix(code.RedeemedAt), unix(code.CreatedAt),
	)
	return mapConstraint(err)
}

func (r *authorizationCodesRepo) GetAuthorizationCodeByHash(ctx context.Context, hash string) (domain.AuthorizationCode, error) {
	var (
		c          domain.AuthorizationCode
		scopes     string
		expiresAt  int64
		redeemedAt sql.NullInt64
		createdAt  int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT `+codeColumns+` FROM authorization_codes WHERE code_hash = ?`, hash,
	).Scan(&c.ID, &c.CodeHash, &c.ClientID, &c.UserID, &c.RedirectURI, &scopes,
		&c.CodeChallenge, &c.CodeChallengeMethod, &expiresAt, &redeemedAt, &createdAt)
	if err != nil {
		return domain.AuthorizationCode{}, mapNotFound(err)
	}
	c.Scopes = splitAndFilter(scopes)
	c.ExpiresAt = fromUnix(expiresAt)
	c.RedeemedAt = fromNullUnix(redeemedAt)
	c.CreatedAt = fromUnix(createdAt)
	return c, nil
}

// RedeemAuthorizationCode flips redeemed_at only while it is still NULL.
// The row count tells the winner from everyone else.
func (r *authorizationCodesRepo) RedeemAuthorizationCode(ctx context.Context, hash string, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE authorization_codes SET redeemed_at = ? WHERE code_hash = ? AND redeemed_at IS NULL`,
		unix(now), hash,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var exists int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM authorization_codes WHERE code_hash = ?`, hash).Scan(&exists)
	if err != nil {
		return mapNotFound(err)
	}
	return store.ErrAlreadyRedeemed
}

func (r *authorizationCodesRepo) DeleteExpiredAuthorizationCodes(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM authorization_codes WHERE expires_at <= ?`, unix(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
