package jwtx_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/aussiebroadwan/tokend/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestNewEphemeralKeyManager(t *testing.T) {
	tests := []struct {
		name      string
		algorithm string
		numKeys   int
		want      int
	}{
		{"RS256 default", jwtx.AlgorithmRS256, 0, 1},
		{"ES256 three keys", jwtx.AlgorithmES256, 3, 3},
		{"capped at ten", jwtx.AlgorithmES256, 50, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
				Algorithm: tt.algorithm,
				Issuer:    exampleIssuer,
				NumKeys:   tt.numKeys,
			})
			require.NoError(t, err)
			require.True(t, km.IsReady())
			require.Equal(t, tt.algorithm, km.Algorithm())
			require.Equal(t, tt.want, km.NumSigners())
			require.Len(t, km.KeySet.PublicJWKS().Keys, tt.want)
		})
	}
}

func TestNewEphemeralKeyManager_Errors(t *testing.T) {
	_, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{Algorithm: jwtx.AlgorithmES256})
	require.Error(t, err, "issuer is required")

	_, err = jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{Algorithm: "EdDSA", Issuer: exampleIssuer})
	require.Error(t, err)
}

func TestNewKeyManager_RejectsAlgorithmMismatch(t *testing.T) {
	pemKey, err := jwtx.GenerateKey(jwtx.AlgorithmES256, 0)
	require.NoError(t, err)
	signer, err := jwtx.NewSigner(jwtx.AlgorithmES256, "k1", pemKey)
	require.NoError(t, err)

	_, err = jwtx.NewKeyManager(jwtx.KeyManagerOptions{Algorithm: jwtx.AlgorithmRS256, Issuer: exampleIssuer}, signer)
	require.Error(t, err)
}

func TestKeyManager_AnySignerVerifies(t *testing.T) {
	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithm: jwtx.AlgorithmES256,
		Issuer:    exampleIssuer,
		NumKeys:   3,
	})
	require.NoError(t, err)

	for range 20 {
		token, err := km.GetSigner().Sign(testClaims(time.Now(), time.Minute))
		require.NoError(t, err)
		_, err = km.Verifier.Verify(token)
		require.NoError(t, err)
	}
}

func TestKeySet_ResetFromJWKS(t *testing.T) {
	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithm: jwtx.AlgorithmRS256,
		Issuer:    exampleIssuer,
	})
	require.NoError(t, err)

	// Round trip through JSON the way a resource server would see it.
	raw, err := json.Marshal(km.KeySet.PublicJWKS())
	require.NoError(t, err)
	var jwks jwtx.JWKS
	require.NoError(t, json.Unmarshal(raw, &jwks))

	remote := jwtx.NewKeySet()
	require.False(t, remote.IsReady())
	require.NoError(t, remote.ResetFromJWKS(jwks))
	require.True(t, remote.IsReady())

	token, err := km.GetSigner().Sign(testClaims(time.Now(), time.Minute))
	require.NoError(t, err)
	_, err = jwtx.NewVerifier(remote, jwtx.VerifyOptions{Issuer: exampleIssuer}).Verify(token)
	require.NoError(t, err)
}

func TestKeySet_RejectsDuplicateKid(t *testing.T) {
	pemKey, err := jwtx.GenerateKey(jwtx.AlgorithmES256, 0)
	require.NoError(t, err)
	signer, err := jwtx.NewSigner(jwtx.AlgorithmES256, "same", pemKey)
	require.NoError(t, err)

	ks := jwtx.NewKeySet()
	require.NoError(t, ks.AddSigner(signer))
	require.Error(t, ks.AddSigner(signer))

	_, err = ks.Get("missing")
	require.ErrorIs(t, err, jwtx.ErrNoKey)
}
