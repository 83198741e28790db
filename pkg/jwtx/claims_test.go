package jwtx_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/aussiebroadwan/tokend/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestValidateIssuer(t *testing.T) {
	c := &jwtx.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "https://auth.example.com"},
	}

	t.Run("matching issuer", func(t *testing.T) {
		require.NoError(t, c.ValidateIssuer("https://auth.example.com"))
	})

	t.Run("empty expected issuer", func(t *testing.T) {
		require.NoError(t, c.ValidateIssuer(""))
	})

	t.Run("mismatched issuer", func(t *testing.T) {
		require.ErrorIs(t, c.ValidateIssuer("https://other.example.com"), jwtx.ErrIssuer)
	})
}

func TestValidateAudience(t *testing.T) {
	c := &jwtx.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Audience: []string{"weather-api", "billing-api"}},
	}

	require.NoError(t, c.ValidateAudience([]string{"weather-api"}))
	require.NoError(t, c.ValidateAudience([]string{"foo", "billing-api"}))
	require.NoError(t, c.ValidateAudience(nil))
	require.ErrorIs(t, c.ValidateAudience([]string{"admin"}), jwtx.ErrAudience)
}

func TestValidateExpiry(t *testing.T) {
	now := time.Now().UTC()

	t.Run("valid token", func(t *testing.T) {
		c := &jwtx.Claims{RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		}}
		require.NoError(t, c.ValidateExpiry())
	})

	t.Run("expired token", func(t *testing.T) {
		c := &jwtx.Claims{RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
		}}
		require.ErrorIs(t, c.ValidateExpiry(), jwtx.ErrExpired)
	})

	t.Run("not yet valid", func(t *testing.T) {
		c := &jwtx.Claims{RegisteredClaims: jwt.RegisteredClaims{
			NotBefore: jwt.NewNumericDate(now.Add(time.Minute)),
		}}
		require.ErrorIs(t, c.ValidateExpiry(), jwtx.ErrNotYetValid)
	})

	t.Run("leeway absorbs skew", func(t *testing.T) {
		c := &jwtx.Claims{RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(-10 * time.Second)),
		}}
		require.NoError(t, c.ValidateExpiryWithLeeway(time.Minute))
	})
}

func TestClaims_ScopeClaim(t *testing.T) {
	t.Run("absent", func(t *testing.T) {
		var c jwtx.Claims
		require.NoError(t, json.Unmarshal([]byte(`{"sub":"u1"}`), &c))
		_, ok := c.ScopeClaim()
		require.False(t, ok)
		require.Nil(t, c.Scopes())
	})

	t.Run("present but empty", func(t *testing.T) {
		var c jwtx.Claims
		require.NoError(t, json.Unmarshal([]byte(`{"scope":""}`), &c))
		raw, ok := c.ScopeClaim()
		require.True(t, ok)
		require.Empty(t, raw)
	})

	t.Run("space delimited", func(t *testing.T) {
		var c jwtx.Claims
		require.NoError(t, json.Unmarshal([]byte(`{"scope":"openid  API"}`), &c))
		require.Equal(t, []string{"openid", "API"}, c.Scopes())
	})
}

func TestClaims_RoleAcceptsStringOrArray(t *testing.T) {
	var single jwtx.Claims
	require.NoError(t, json.Unmarshal([]byte(`{"role":"admin"}`), &single))
	require.Equal(t, jwt.ClaimStrings{"admin"}, single.Roles)

	var multi jwtx.Claims
	require.NoError(t, json.Unmarshal([]byte(`{"role":["admin","ops"]}`), &multi))
	require.Equal(t, jwt.ClaimStrings{"admin", "ops"}, multi.Roles)
}

func TestNewJTI_Unique(t *testing.T) {
	seen := make(map[string]struct{})
	for range 100 {
		j := jwtx.NewJTI()
		_, dup := seen[j]
		require.False(t, dup)
		seen[j] = struct{}{}
	}
}
