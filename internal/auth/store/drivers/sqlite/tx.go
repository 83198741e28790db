package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/tokend/internal/auth/store"
)

type txStore struct {
	tx *sql.Tx
}

func newTx(tx *sql.Tx) *txStore {
	return &txStore{tx: tx}
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

// Close is a no-op; the caller commits or rolls back and the DB stays open.
func (t *txStore) Close() error { return nil }

func (t *txStore) Ping(ctx context.Context) error { return nil }

// Nested transactions are not supported.
func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	return nil, sql.ErrTxDone
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return sql.ErrTxDone
}

func (t *txStore) Users() store.Users                 { return &usersRepo{db: t.tx} }
func (t *txStore) Clients() store.Clients             { return &clientsRepo{db: t.tx} }
func (t *txStore) Scopes() store.Scopes               { return &scopesRepo{db: t.tx} }
func (t *txStore) RefreshTokens() store.RefreshTokens { return &refreshTokensRepo{db: t.tx} }
func (t *txStore) AuthorizationCodes() store.AuthorizationCodes {
	return &authorizationCodesRepo{db: t.tx}
}

// ApplyMigrations is a no-op; migrations run before any transaction.
func (t *txStore) ApplyMigrations() error { return nil }
