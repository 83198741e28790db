package service

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/aussiebroadwan/tokend/internal/auth/domain"
	"github.com/aussiebroadwan/tokend/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestBuildDestinations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		claim   string
		granted []string
		want    domain.Destination
	}{
		{domain.ClaimName, nil, domain.DestinationAccessToken},
		{domain.ClaimName, []string{"profile"}, domain.DestinationBoth},
		{domain.ClaimEmail, []string{"profile"}, domain.DestinationAccessToken},
		{domain.ClaimEmail, []string{"email"}, domain.DestinationBoth},
		{domain.ClaimRole, []string{"openid"}, domain.DestinationAccessToken},
		{domain.ClaimRole, []string{"roles"}, domain.DestinationBoth},
		{domain.ClaimSecurityStamp, []string{"openid", "profile", "email", "roles"}, domain.DestinationNone},
		{"tenant", []string{"openid", "profile"}, domain.DestinationAccessToken},
	}

	for _, tt := range tests {
		t.Run(tt.claim+"/"+tt.want.String(), func(t *testing.T) {
			require.Equal(t, tt.want, BuildDestinations(tt.claim, tt.granted))
		})
	}
}

func TestBuildDestinations_Property(t *testing.T) {
	t.Parallel()

	scopeGen := rapid.SliceOfDistinct(
		rapid.SampledFrom([]string{"openid", "offline_access", "profile", "email", "roles", "API"}),
		rapid.ID[string],
	)
	claimGen := rapid.OneOf(
		rapid.SampledFrom([]string{domain.ClaimName, domain.ClaimEmail, domain.ClaimRole, domain.ClaimSecurityStamp}),
		rapid.StringMatching(`[a-z_]{1,12}`),
	)

	rapid.Check(t, func(rt *rapid.T) {
		granted := scopeGen.Draw(rt, "granted")
		claim := claimGen.Draw(rt, "claim")
		dest := BuildDestinations(claim, granted)

		if claim == domain.ClaimSecurityStamp {
			require.Equal(rt, domain.DestinationNone, dest)
			return
		}
		require.True(rt, dest.Has(domain.DestinationAccessToken), "every non-private claim reaches the access token")

		rule, special := destinationTable[claim]
		wantIdentity := special && slices.Contains(granted, rule.identityScope)
		require.Equal(rt, wantIdentity, dest.Has(domain.DestinationIdentityToken))
	})
}

// No combination of user, scopes and claims ever writes the security stamp
// into a signed token.
func TestSecurityStampNeverIssued(t *testing.T) {
	t.Parallel()

	keys, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{Algorithm: jwtx.AlgorithmES256, Issuer: testIssuer})
	require.NoError(t, err)
	scopes := fakeScopes{"profile": nil, "email": nil, "roles": nil, "API": {"weather-api"}}
	builder := &ClaimsBuilder{Scopes: scopes}
	issuer := &TokenIssuer{Keys: keys, Issuer: testIssuer}

	rapid.Check(t, func(rt *rapid.T) {
		u := domain.User{
			ID:            "u1",
			Username:      rapid.StringMatching(`[a-z]{0,8}`).Draw(rt, "username"),
			Email:         rapid.StringMatching(`([a-z]{1,6}@example\.com)?`).Draw(rt, "email"),
			Roles:         rapid.SliceOfN(rapid.SampledFrom([]string{"admin", "ops", "dev"}), 0, 3).Draw(rt, "roles"),
			SecurityStamp: rapid.StringMatching(`[A-Z0-9]{1,16}`).Draw(rt, "stamp"),
		}
		granted := rapid.SliceOfDistinct(
			rapid.SampledFrom([]string{"openid", "profile", "email", "roles", "API"}),
			rapid.ID[string],
		).Draw(rt, "granted")

		p, err := builder.ForUser(context.Background(), u, "c1", granted)
		require.NoError(rt, err)
		res, err := issuer.Issue(context.Background(), p, time.Now(), IssueOptions{})
		require.NoError(rt, err)

		tokens := []string{res.AccessToken.Value}
		if res.IdentityToken != nil {
			tokens = append(tokens, res.IdentityToken.Value)
		}
		for _, raw := range tokens {
			claims := jwt.MapClaims{}
			_, _, err := jwt.NewParser().ParseUnverified(raw, claims)
			require.NoError(rt, err)
			require.NotContains(rt, claims, domain.ClaimSecurityStamp)
		}
	})
}

func TestClaimsBuilder_ForUser(t *testing.T) {
	t.Parallel()
	b := &ClaimsBuilder{Scopes: fakeScopes{"profile": nil, "API": {"weather-api"}, "billing": {"billing-api", "weather-api"}}}

	u := domain.User{ID: "u1", Username: "alice", Roles: []string{"admin", "ops"}, SecurityStamp: "s"}
	p, err := b.ForUser(context.Background(), u, "c1", []string{"openid", "profile", "API", "billing"})
	require.NoError(t, err)

	require.Equal(t, "u1", p.Subject)
	require.Equal(t, "c1", p.ClientID)
	require.Equal(t, []string{"weather-api", "billing-api"}, p.Resources)
	require.Equal(t, []domain.Claim{
		{Type: domain.ClaimName, Value: "alice", Destinations: domain.DestinationBoth},
		{Type: domain.ClaimRole, Value: "admin", Destinations: domain.DestinationAccessToken},
		{Type: domain.ClaimRole, Value: "ops", Destinations: domain.DestinationAccessToken},
		{Type: domain.ClaimSecurityStamp, Value: "s", Destinations: domain.DestinationNone},
	}, p.Claims, "empty email is skipped")
}

func TestPutClaims_RepeatedTypesBecomeArrays(t *testing.T) {
	t.Parallel()

	dst := jwt.MapClaims{"sub": "u1"}
	putClaims(dst, []domain.Claim{
		{Type: "role", Value: "admin"},
		{Type: "sub", Value: "spoofed"},
		{Type: "role", Value: "ops"},
		{Type: "name", Value: "alice"},
	})
	require.Equal(t, jwt.MapClaims{
		"sub":  "u1",
		"role": []string{"admin", "ops"},
		"name": "alice",
	}, dst)
}
