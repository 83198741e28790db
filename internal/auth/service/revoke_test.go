package service

import (
	"context"
	"testing"

	"github.com/aussiebroadwan/tokend/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestRevoke(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.login(t, "API")
	second, err := env.dispatch(t, env.refreshRequest(first.RefreshToken.Value))
	require.NoError(t, err)

	t.Run("unknown token is ignored", func(t *testing.T) {
		require.NoError(t, env.Svc.Revocation.Revoke(ctx, "default-client", testClientSecret, "made-up"))
	})

	t.Run("other client's token is ignored", func(t *testing.T) {
		require.NoError(t, env.Svc.Revocation.Revoke(ctx, "swagger-client", "", second.RefreshToken.Value))
		rt, err := env.Store.RefreshTokens().GetRefreshTokenByHash(ctx, cryptox.FingerprintToken(second.RefreshToken.Value))
		require.NoError(t, err)
		require.False(t, rt.Revoked)
	})

	t.Run("client must authenticate", func(t *testing.T) {
		err := env.Svc.Revocation.Revoke(ctx, "default-client", "nope", second.RefreshToken.Value)
		require.ErrorIs(t, err, ErrInvalidClient)
	})

	t.Run("token is required", func(t *testing.T) {
		err := env.Svc.Revocation.Revoke(ctx, "default-client", testClientSecret, " ")
		require.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("revokes the whole family", func(t *testing.T) {
		require.NoError(t, env.Svc.Revocation.Revoke(ctx, "default-client", testClientSecret, first.RefreshToken.Value))
		for _, v := range []string{first.RefreshToken.Value, second.RefreshToken.Value} {
			rt, err := env.Store.RefreshTokens().GetRefreshTokenByHash(ctx, cryptox.FingerprintToken(v))
			require.NoError(t, err)
			require.True(t, rt.Revoked)
		}
	})
}
