package service

import (
	"context"
	"testing"

	"github.com/aussiebroadwan/tokend/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

func TestUserInfo_FollowsIdentityDestinations(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	info, err := env.Svc.UserInfo.UserInfo(ctx, env.User.ID, []string{"openid"})
	require.NoError(t, err)
	require.Equal(t, authsdk.UserInfo{Subject: env.User.ID}, info)

	info, err = env.Svc.UserInfo.UserInfo(ctx, env.User.ID, []string{"openid", "profile", "email", "roles"})
	require.NoError(t, err)
	require.Equal(t, "administrator", info.Name)
	require.Equal(t, "admin@example.com", info.Email)
	require.Equal(t, []string{"admin"}, info.Roles)

	_, err = env.Svc.UserInfo.UserInfo(ctx, "missing", []string{"openid"})
	require.ErrorIs(t, err, ErrInvalidGrant)
}
