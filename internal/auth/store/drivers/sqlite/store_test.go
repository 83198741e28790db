package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/tokend/internal/auth/domain"
	"github.com/aussiebroadwan/tokend/internal/auth/store"
	"github.com/aussiebroadwan/tokend/internal/auth/store/drivers/sqlite"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.NewStore(sqlite.DSN(filepath.Join(t.TempDir(), "tokend.db")))
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seed(t *testing.T, s store.Store) (domain.User, domain.Client) {
	t.Helper()
	ctx := context.Background()

	u := domain.User{
		ID:            "u1",
		Username:      "Administrator",
		Email:         "admin@example.com",
		PasswordHash:  "hash",
		Roles:         []string{"admin", "ops"},
		SecurityStamp: "stamp",
	}
	require.NoError(t, s.Users().CreateUser(ctx, u))

	c := domain.Client{
		ID:                "default-client",
		SecretHash:        "secret",
		DisplayName:       "Default",
		AllowedGrantTypes: []domain.GrantType{domain.GrantPassword, domain.GrantRefreshToken},
		AllowedScopes:     []string{"openid", "API"},
		RedirectURIs:      []string{"https://app.example.com/cb"},
	}
	require.NoError(t, s.Clients().CreateClient(ctx, c))
	return u, c
}

func TestApplyMigrations_Idempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.Ping(context.Background()))
}

func TestUsers_CaseInsensitiveUsername(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	empty, err := s.Users().IsEmpty(ctx)
	require.NoError(t, err)
	require.True(t, empty)

	u, _ := seed(t, s)

	got, err := s.Users().GetUserByUsername(ctx, "ADMINISTRATOR")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.Equal(t, []string{"admin", "ops"}, got.Roles)
	require.Nil(t, got.LockoutUntil)

	err = s.Users().CreateUser(ctx, domain.User{ID: "u2", Username: "administrator", PasswordHash: "x"})
	require.ErrorIs(t, err, store.ErrAlreadyExists)

	_, err = s.Users().GetUserByUsername(ctx, "nobody")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestUsers_RecordFailedAttempt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u, _ := seed(t, s)
	now := time.Now().Truncate(time.Second)

	for i := 1; i < 3; i++ {
		got, err := s.Users().RecordFailedAttempt(ctx, u.ID, now, 3, time.Minute)
		require.NoError(t, err)
		require.Equal(t, i, got.AccessFailedCount)
		require.False(t, got.IsLockedOut(now))
	}

	got, err := s.Users().RecordFailedAttempt(ctx, u.ID, now, 3, time.Minute)
	require.NoError(t, err)
	require.Zero(t, got.AccessFailedCount, "counter starts over once locked")
	require.True(t, got.IsLockedOut(now))
	require.False(t, got.IsLockedOut(now.Add(2*time.Minute)))

	require.NoError(t, s.Users().ResetFailedAttempts(ctx, u.ID))
	got, err = s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Nil(t, got.LockoutUntil)

	_, err = s.Users().RecordFailedAttempt(ctx, "missing", now, 3, time.Minute)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestUsers_RecordFailedAttempt_DisabledLockout(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u, _ := seed(t, s)

	var got domain.User
	var err error
	for range 10 {
		got, err = s.Users().RecordFailedAttempt(ctx, u.ID, time.Now(), 0, time.Minute)
		require.NoError(t, err)
	}
	require.Equal(t, 10, got.AccessFailedCount)
	require.Nil(t, got.LockoutUntil)
}

func TestUsers_RecordFailedAttempt_Concurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u, _ := seed(t, s)

	var g errgroup.Group
	for range 20 {
		g.Go(func() error {
			_, err := s.Users().RecordFailedAttempt(ctx, u.ID, time.Now(), 0, time.Minute)
			return err
		})
	}
	require.NoError(t, g.Wait())

	got, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, 20, got.AccessFailedCount, "no increment may be lost")
}

func TestClients_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, c := seed(t, s)

	got, err := s.Clients().GetClientByID(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, c.AllowedGrantTypes, got.AllowedGrantTypes)
	require.Equal(t, c.AllowedScopes, got.AllowedScopes)
	require.Equal(t, c.RedirectURIs, got.RedirectURIs)
	require.Equal(t, domain.ConsentImplicit, got.ConsentType)

	require.ErrorIs(t, s.Clients().CreateClient(ctx, c), store.ErrAlreadyExists)

	list, err := s.Clients().ListClients(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestScopes_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Scopes().CreateScope(ctx, domain.Scope{Name: "API", Resources: []string{"weather-api"}}))
	require.NoError(t, s.Scopes().CreateScope(ctx, domain.Scope{Name: "email"}))
	require.ErrorIs(t, s.Scopes().CreateScope(ctx, domain.Scope{Name: "API"}), store.ErrAlreadyExists)

	got, err := s.Scopes().GetScopeByName(ctx, "API")
	require.NoError(t, err)
	require.Equal(t, []string{"weather-api"}, got.Resources)

	list, err := s.Scopes().ListScopes(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "API", list[0].Name)

	_, err = s.Scopes().GetScopeByName(ctx, "api")
	require.ErrorIs(t, err, store.ErrNotFound, "scope names are case-sensitive")
}

func newCode(u domain.User, c domain.Client, hash string, expires time.Time) domain.AuthorizationCode {
	return domain.AuthorizationCode{
		ID:                  "code-" + hash,
		CodeHash:            hash,
		ClientID:            c.ID,
		UserID:              u.ID,
		RedirectURI:         c.RedirectURIs[0],
		Scopes:              []string{"openid", "API"},
		CodeChallenge:       "challenge",
		CodeChallengeMethod: domain.PKCEMethodS256,
		ExpiresAt:           expires,
	}
}

func TestAuthorizationCodes_RedeemExactlyOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u, c := seed(t, s)

	require.NoError(t, s.AuthorizationCodes().CreateAuthorizationCode(ctx, newCode(u, c, "h1", time.Now().Add(time.Minute))))

	var wins atomic.Int32
	var g errgroup.Group
	for range 16 {
		g.Go(func() error {
			err := s.AuthorizationCodes().RedeemAuthorizationCode(ctx, "h1", time.Now())
			switch {
			case err == nil:
				wins.Add(1)
				return nil
			case errors.Is(err, store.ErrAlreadyRedeemed):
				return nil
			default:
				return err
			}
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, int32(1), wins.Load())

	got, err := s.AuthorizationCodes().GetAuthorizationCodeByHash(ctx, "h1")
	require.NoError(t, err)
	require.NotNil(t, got.RedeemedAt)

	require.ErrorIs(t, s.AuthorizationCodes().RedeemAuthorizationCode(ctx, "missing", time.Now()), store.ErrNotFound)
}

func TestAuthorizationCodes_DeleteExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u, c := seed(t, s)
	now := time.Now()

	require.NoError(t, s.AuthorizationCodes().CreateAuthorizationCode(ctx, newCode(u, c, "old", now.Add(-time.Minute))))
	require.NoError(t, s.AuthorizationCodes().CreateAuthorizationCode(ctx, newCode(u, c, "new", now.Add(time.Minute))))

	n, err := s.AuthorizationCodes().DeleteExpiredAuthorizationCodes(ctx, now)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	_, err = s.AuthorizationCodes().GetAuthorizationCodeByHash(ctx, "old")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteUser_Cascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u, c := seed(t, s)

	require.NoError(t, s.AuthorizationCodes().CreateAuthorizationCode(ctx, newCode(u, c, "h1", time.Now().Add(time.Minute))))
	require.NoError(t, s.RefreshTokens().CreateRefreshToken(ctx, domain.RefreshToken{
		ID: "rt1", TokenHash: "th1", FamilyID: "f1", ClientID: c.ID, UserID: u.ID,
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	require.NoError(t, s.Users().DeleteUser(ctx, u.ID))

	_, err := s.AuthorizationCodes().GetAuthorizationCodeByHash(ctx, "h1")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.RefreshTokens().GetRefreshTokenByHash(ctx, "th1")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.ErrorIs(t, s.Users().DeleteUser(ctx, u.ID), store.ErrNotFound)
}

func TestRefreshTokens_RotateAndRevokeFamily(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u, c := seed(t, s)
	exp := time.Now().Add(time.Hour)

	first := domain.RefreshToken{
		ID: "rt1", TokenHash: "th1", FamilyID: "fam", ClientID: c.ID, UserID: u.ID,
		Scopes: []string{"API", "offline_access"}, ExpiresAt: exp,
	}
	require.NoError(t, s.RefreshTokens().CreateRefreshToken(ctx, first))

	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.RefreshTokens().RedeemRefreshToken(ctx, first.ID, time.Now()); err != nil {
			return err
		}
		next := first
		next.ID, next.TokenHash = "rt2", "th2"
		return tx.RefreshTokens().CreateRefreshToken(ctx, next)
	})
	require.NoError(t, err)

	require.ErrorIs(t, s.RefreshTokens().RedeemRefreshToken(ctx, first.ID, time.Now()), store.ErrAlreadyRedeemed)

	n, err := s.RefreshTokens().RevokeRefreshTokenFamily(ctx, "fam")
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	got, err := s.RefreshTokens().GetRefreshTokenByHash(ctx, "th2")
	require.NoError(t, err)
	require.True(t, got.Revoked)
	require.Equal(t, []string{"API", "offline_access"}, got.Scopes)

	require.ErrorIs(t, s.RefreshTokens().RedeemRefreshToken(ctx, "rt2", time.Now()), store.ErrAlreadyRedeemed,
		"a revoked token cannot be redeemed")
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Scopes().CreateScope(ctx, domain.Scope{Name: "API"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Scopes().GetScopeByName(ctx, "API")
	require.ErrorIs(t, err, store.ErrNotFound)
}
