package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/tokend/internal/auth/domain"
	"github.com/aussiebroadwan/tokend/internal/auth/store"
	"github.com/aussiebroadwan/tokend/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/tokend/pkg/cryptox"
	"github.com/aussiebroadwan/tokend/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer         = "https://auth.example.com"
	testClientSecret   = "DB95C15D-54AE-4044-8E05-07044FD96943"
	testAPISecret      = "11111111-54AE-4044-8E05-07044FD96943"
	testPassword       = "demo"
	testRedirectURI    = "https://app.example.com/callback"
	testCodeVerifier   = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	weatherAPIAudience = "weather-api"
)

// fakeClock is a settable clock shared by the services under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	Store store.Store
	Keys  *jwtx.KeyManager
	Svc   *Services
	Clock *fakeClock
	User  domain.User
}

// newTestEnv wires the services over a fresh sqlite database seeded with
// the default scopes, clients and user.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	st, err := sqlite.NewStore(sqlite.DSN(filepath.Join(t.TempDir(), "tokend.db")))
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	keys, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithm: jwtx.AlgorithmES256,
		Issuer:    testIssuer,
	})
	require.NoError(t, err)

	clock := &fakeClock{now: time.Now().Truncate(time.Second)}
	svc := New(st, keys, nil, Config{
		Issuer:            testIssuer,
		MaxFailedAttempts: DefaultMaxFailedAttempts,
		LockoutDuration:   DefaultLockoutDuration,
		CacheTTL:          time.Minute,
		Now:               clock.Now,
	})

	for _, sc := range []domain.Scope{
		{Name: domain.ScopeProfile},
		{Name: domain.ScopeEmail},
		{Name: domain.ScopeRoles},
		{Name: "API", Resources: []string{weatherAPIAudience}},
	} {
		require.NoError(t, svc.Scopes.Register(ctx, sc))
	}

	require.NoError(t, svc.Clients.Register(ctx, domain.Client{
		ID:                "default-client",
		DisplayName:       "Auth Server Default Client",
		AllowedGrantTypes: []domain.GrantType{domain.GrantPassword, domain.GrantRefreshToken, domain.GrantClientCredentials},
		AllowedScopes:     []string{domain.ScopeOpenID, domain.ScopeOfflineAccess, domain.ScopeProfile, domain.ScopeEmail, domain.ScopeRoles, "API"},
	}, testClientSecret))
	require.NoError(t, svc.Clients.Register(ctx, domain.Client{
		ID:                "default-api-client",
		DisplayName:       "Default API Client",
		AllowedGrantTypes: []domain.GrantType{domain.GrantClientCredentials},
		AllowedScopes:     []string{"API"},
	}, testAPISecret))
	require.NoError(t, svc.Clients.Register(ctx, domain.Client{
		ID:                "swagger-client",
		DisplayName:       "Swagger UI",
		AllowedGrantTypes: []domain.GrantType{domain.GrantAuthorizationCode, domain.GrantRefreshToken},
		AllowedScopes:     []string{domain.ScopeOpenID, domain.ScopeProfile, "API"},
		RedirectURIs:      []string{testRedirectURI},
		RequiresPKCE:      true,
	}, ""))

	user, err := svc.Users.Create(ctx, "administrator", "admin@example.com", testPassword, []string{"admin"})
	require.NoError(t, err)

	return &testEnv{Store: st, Keys: keys, Svc: svc, Clock: clock, User: user}
}

func (e *testEnv) dispatch(t *testing.T, req domain.TokenRequest) (domain.TokenResult, error) {
	t.Helper()
	return e.Svc.Dispatcher.Dispatch(context.Background(), req)
}

func (e *testEnv) passwordRequest(scopes ...string) domain.TokenRequest {
	return domain.TokenRequest{
		GrantType:    string(domain.GrantPassword),
		ClientID:     "default-client",
		ClientSecret: testClientSecret,
		Username:     "administrator",
		Password:     testPassword,
		Scopes:       scopes,
	}
}

// verify parses a signed token without checking expiry against the wall
// clock, since the services run on the fake clock.
func (e *testEnv) verify(t *testing.T, token string) jwtx.Claims {
	t.Helper()
	v := jwtx.NewVerifier(e.Keys.KeySet, jwtx.VerifyOptions{Issuer: testIssuer, Leeway: time.Hour})
	claims, err := v.Verify(token)
	require.NoError(t, err)
	return claims
}

// authorize issues a code for the swagger client with an S256 challenge.
func (e *testEnv) authorize(t *testing.T, scopes ...string) string {
	t.Helper()
	resp, err := e.Svc.Authorize.IssueAuthorizationCode(context.Background(), AuthorizeRequest{
		ResponseType:        "code",
		ClientID:            "swagger-client",
		RedirectURI:         testRedirectURI,
		Scopes:              scopes,
		State:               "xyz",
		CodeChallenge:       cryptox.S256Challenge(testCodeVerifier),
		CodeChallengeMethod: domain.PKCEMethodS256,
		Username:            "administrator",
		Password:            testPassword,
	})
	require.NoError(t, err)
	require.Equal(t, "xyz", resp.State)
	return resp.Code
}

func (e *testEnv) codeRequest(code string) domain.TokenRequest {
	return domain.TokenRequest{
		GrantType:    string(domain.GrantAuthorizationCode),
		ClientID:     "swagger-client",
		Code:         code,
		RedirectURI:  testRedirectURI,
		CodeVerifier: testCodeVerifier,
	}
}
