package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/tokend/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrAlreadyRedeemed is returned by the Redeem methods when another
	// request consumed the code or token first.
	ErrAlreadyRedeemed = errors.New("store: already redeemed")
)

// Store is the root data access interface. Concrete drivers implement this
// and expose sub-repositories so transactions cannot be nested by accident.
type Store interface {
	Users() Users
	Clients() Clients
	Scopes() Scopes
	RefreshTokens() RefreshTokens
	AuthorizationCodes() AuthorizationCodes

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByUsername matches case-insensitively.
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// CreateUser inserts a new user. ErrAlreadyExists on a username clash.
	CreateUser(ctx context.Context, u domain.User) error

	SetUserDisabled(ctx context.Context, id string, disabled bool) error

	// DeleteUser cascades to codes and refresh tokens.
	DeleteUser(ctx context.Context, id string) error

	// RecordFailedAttempt increments the failed-login counter in a single
	// statement. When the counter reaches maxAttempts the user is locked
	// until now+lockout and the counter starts over. maxAttempts <= 0 never
	// locks. Returns the updated user.
	RecordFailedAttempt(ctx context.Context, id string, now time.Time, maxAttempts int, lockout time.Duration) (domain.User, error)

	// ResetFailedAttempts clears the counter after a successful sign-in.
	ResetFailedAttempts(ctx context.Context, id string) error

	IsEmpty(ctx context.Context) (bool, error)
}

type Clients interface {
	GetClientByID(ctx context.Context, id string) (domain.Client, error)

	// ListClients returns all clients ordered by id.
	ListClients(ctx context.Context) ([]domain.Client, error)

	// CreateClient inserts a new client. ErrAlreadyExists on an id clash.
	CreateClient(ctx context.Context, c domain.Client) error

	// DeleteClient cascades to codes and refresh tokens.
	DeleteClient(ctx context.Context, id string) error
}

type Scopes interface {
	GetScopeByName(ctx context.Context, name string) (domain.Scope, error)

	// ListScopes returns all registered scopes ordered by name.
	ListScopes(ctx context.Context) ([]domain.Scope, error)

	// CreateScope inserts a new scope. ErrAlreadyExists on a name clash.
	CreateScope(ctx context.Context, s domain.Scope) error
}

type AuthorizationCodes interface {
	// CreateAuthorizationCode stores a freshly minted authorization code.
	CreateAuthorizationCode(ctx context.Context, code domain.AuthorizationCode) error

	// GetAuthorizationCodeByHash fetches a code by its hashed value when redeeming.
	GetAuthorizationCodeByHash(ctx context.Context, hash string) (domain.AuthorizationCode, error)

	// RedeemAuthorizationCode marks the code consumed if and only if nobody
	// has yet. Exactly one concurrent caller succeeds; the others get
	// ErrAlreadyRedeemed.
	RedeemAuthorizationCode(ctx context.Context, hash string, now time.Time) error

	// DeleteExpiredAuthorizationCodes removes codes past their expiry.
	DeleteExpiredAuthorizationCodes(ctx context.Context, now time.Time) (int64, error)
}

type RefreshTokens interface {
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error

	// GetRefreshTokenByHash looks a token up by its fingerprint.
	GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error)

	// RedeemRefreshToken is the compare-and-set used for rotation. Exactly
	// one concurrent caller succeeds; the others get ErrAlreadyRedeemed.
	RedeemRefreshToken(ctx context.Context, id string, now time.Time) error

	// RevokeRefreshTokenFamily revokes every token rotated from the same
	// grant. Returns the number of tokens newly revoked.
	RevokeRefreshTokenFamily(ctx context.Context, familyID string) (int64, error)

	// DeleteExpiredRefreshTokens removes tokens past their expiry.
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}

// WithAuthorizationCodes returns a Store that keeps authorization codes in
// codes and everything else in base. Used to share codes across instances
// through Redis while the rest stays in the database.
func WithAuthorizationCodes(base Store, codes AuthorizationCodes) Store {
	return &codesOverlay{Store: base, codes: codes}
}

type codesOverlay struct {
	Store
	codes AuthorizationCodes
}

func (o *codesOverlay) AuthorizationCodes() AuthorizationCodes { return o.codes }

// Tx starts a transaction on base whose AuthorizationCodes are still the
// overlay's. Writes to codes are not part of the transaction.
func (o *codesOverlay) Tx(ctx context.Context) (Tx, error) {
	tx, err := o.Store.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &codesTxOverlay{Tx: tx, codes: o.codes}, nil
}

func (o *codesOverlay) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	return o.Store.WithTx(ctx, func(tx Tx) error {
		return fn(&codesTxOverlay{Tx: tx, codes: o.codes})
	})
}

type codesTxOverlay struct {
	Tx
	codes AuthorizationCodes
}

func (o *codesTxOverlay) AuthorizationCodes() AuthorizationCodes { return o.codes }
