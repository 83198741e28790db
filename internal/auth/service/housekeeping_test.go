package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHousekeeping_Cleanup(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	env.authorize(t, "openid")
	env.login(t, "API")

	hk := NewHousekeepingService(env.Store, slog.New(slog.DiscardHandler), time.Hour)

	codes, tokens := hk.Cleanup(ctx, env.Clock.Now())
	require.Zero(t, codes)
	require.Zero(t, tokens)

	codes, tokens = hk.Cleanup(ctx, env.Clock.Now().Add(DefaultCodeTTL))
	require.Equal(t, int64(1), codes)
	require.Zero(t, tokens)

	codes, tokens = hk.Cleanup(ctx, env.Clock.Now().Add(DefaultRefreshTokenTTL))
	require.Zero(t, codes)
	require.Equal(t, int64(1), tokens)
}

func TestHousekeeping_StartStop(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	hk := NewHousekeepingService(env.Store, slog.New(slog.DiscardHandler), 0)
	require.Equal(t, time.Hour, hk.Interval)

	hk.Start()
	hk.Stop()
}
