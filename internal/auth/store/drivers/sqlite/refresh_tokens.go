package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/tokend/internal/auth/domain"
	"github.com/aussiebroadwan/tokend/internal/auth/store"
)

type refreshTokensRepo struct {
	db dbtx
}

const refreshColumns = `id, token_hash, family_id, client_id, user_id, scopes,
	expires_at, redeemed_at, revoked, created_at`

func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (`+refreshColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.TokenHash, t.FamilyID, t.ClientID, t.UserID, joinFields(t.Scopes),
		unix(t.ExpiresAt), toNullUnix(t.RedeemedAt), boolToInt(t.Revoked), unix(t.CreatedAt),
	)
	return mapConstraint(err)
}

func (r *refreshTokensRepo) GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error) {
	var (
		t          domain.RefreshToken
		scopes     string
		expiresAt  int64
		redeemedAt sql.NullInt64
		revoked    int64
		createdAt  int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT `+refreshColumns+` FROM refresh_tokens WHERE token_hash = ?`, hash,
	).Scan(&t.ID, &t.TokenHash, &t.FamilyID, &t.ClientID, &t.UserID, &scopes,
		&expiresAt, &redeemedAt, &revoked, &createdAt)
	if err != nil {
		return domain.RefreshToken{}, mapNotFound(err)
	}
	t.Scopes = splitAndFilter(scopes)
	t.ExpiresAt = fromUnix(expiresAt)
	t.RedeemedAt = fromNullUnix(redeemedAt)
	t.Revoked = revoked != 0
	t.CreatedAt = fromUnix(createdAt)
	return t, nil
}

func (r *refreshTokensRepo) RedeemRefreshToken(ctx context.Context, id string, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET redeemed_at = ? WHERE id = ? AND redeemed_at IS NULL AND revoked = 0`,
		unix(now), id,
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
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM refresh_tokens WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return mapNotFound(err)
	}
	return store.ErrAlreadyRedeemed
}

func (r *refreshTokensRepo) RevokeRefreshTokenFamily(ctx context.Context, familyID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = 1 WHERE family_id = ? AND revoked = 0`, familyID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= ?`, unix(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
