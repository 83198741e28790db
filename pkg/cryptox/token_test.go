package cryptox

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	for _, size := range []int{TokenSize128, TokenSize256, 24} {
		token, err := GenerateToken(size)
		require.NoError(t, err)

		raw, err := base64.RawURLEncoding.DecodeString(token)
		require.NoError(t, err)
		require.Len(t, raw, size)

		other, err := GenerateToken(size)
		require.NoError(t, err)
		require.NotEqual(t, token, other)
	}
}

func TestGenerateToken_InvalidSize(t *testing.T) {
	_, err := GenerateToken(0)
	require.Error(t, err)

	_, err = GenerateToken(-1)
	require.Error(t, err)
}

func TestFingerprintToken(t *testing.T) {
	a := FingerprintToken("refresh-token")
	require.Equal(t, a, FingerprintToken("refresh-token"))
	require.NotEqual(t, a, FingerprintToken("refresh-token2"))
	require.Len(t, a, 43)
}

func TestS256Challenge(t *testing.T) {
	// RFC 7636 Appendix B.
	require.Equal(t,
		"E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		S256Challenge("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"),
	)
}

func TestEqualConstantTime(t *testing.T) {
	require.True(t, EqualConstantTime("abc", "abc"))
	require.False(t, EqualConstantTime("abc", "abd"))
	require.False(t, EqualConstantTime("abc", "ab"))
}
