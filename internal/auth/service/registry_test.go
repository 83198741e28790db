package service

import (
	"context"
	"testing"

	"github.com/aussiebroadwan/tokend/internal/auth/domain"
	"github.com/aussiebroadwan/tokend/internal/auth/store"
	"github.com/stretchr/testify/require"
)

func TestScopeService(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.Svc.Scopes.Validate(ctx, []string{"openid", "offline_access", "API"}))
	require.ErrorIs(t, env.Svc.Scopes.Validate(ctx, []string{"api"}), ErrInvalidScope, "names are case-sensitive")

	resources, err := env.Svc.Scopes.ResolveResources(ctx, []string{"openid", "API", "API"})
	require.NoError(t, err)
	require.Equal(t, []string{weatherAPIAudience}, resources)

	require.ErrorIs(t, env.Svc.Scopes.Register(ctx, domain.Scope{Name: "openid"}), ErrInvalidRequest)
	require.ErrorIs(t, env.Svc.Scopes.Register(ctx, domain.Scope{Name: "API"}), store.ErrAlreadyExists)

	all, err := env.Svc.Scopes.List(ctx)
	require.NoError(t, err)
	require.Equal(t, "openid", all[0].Name)
	require.Equal(t, "offline_access", all[1].Name)
	require.Len(t, all, 6)
}

func TestClientService(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	c, err := env.Svc.Clients.Authenticate(ctx, "swagger-client", "")
	require.NoError(t, err)
	require.True(t, c.IsPublic())
	require.Equal(t, domain.ConsentImplicit, c.ConsentType)

	_, err = env.Svc.Clients.Authenticate(ctx, "default-client", "")
	require.ErrorIs(t, err, ErrInvalidClient)
	_, err = env.Svc.Clients.Authenticate(ctx, "", "")
	require.ErrorIs(t, err, ErrInvalidClient)

	err = env.Svc.Clients.Register(ctx, domain.Client{
		ID:                "bad",
		AllowedGrantTypes: []domain.GrantType{domain.GrantClientCredentials},
	}, "")
	require.ErrorIs(t, err, ErrInvalidRequest, "public clients cannot use client_credentials")

	err = env.Svc.Clients.Register(ctx, domain.Client{
		ID:                "scoped",
		AllowedGrantTypes: []domain.GrantType{domain.GrantPassword},
		AllowedScopes:     []string{"billing"},
	}, "s")
	require.ErrorIs(t, err, ErrInvalidScope)

	// Deleting drops the cached entry.
	require.NoError(t, env.Svc.Clients.Delete(ctx, "default-api-client"))
	_, err = env.Svc.Clients.FindByID(ctx, "default-api-client")
	require.ErrorIs(t, err, store.ErrNotFound)
}
