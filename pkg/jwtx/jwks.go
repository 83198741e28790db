package jwtx

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"encoding/base64"
	"math/big"
)

// JWK represents a public key in JSON Web Key format (RFC 7517).
type JWK struct {
	Kty string `json:"kty"`           // key type: "RSA" or "EC"
	Use string `json:"use,omitempty"` // "sig"
	Alg string `json:"alg,omitempty"` // "RS256" or "ES256"
	Kid string `json:"kid,omitempty"` // key ID

	// RSA stuff
	N string `json:"n,omitempty"` // modulus (base64url)
	E string `json:"e,omitempty"` // exponent (base64url)

	// EC stuff
	Crv string `json:"crv,omitempty"` // curve: "P-256"
	X   string `json:"x,omitempty"`   // x-coordinate (base64url)
	Y   string `json:"y,omitempty"`   // y-coordinate (base64url)
}

// JWKS is a JSON Web Key Set (RFC 7517).
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// NewRSAJWK builds a JWK for an RSA public key.
func NewRSAJWK(kid, use, alg string, pub *rsa.PublicKey) JWK {
	return JWK{
		Kty: "RSA",
		Use: use,
		Alg: alg,
		Kid: kid,
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

// NewES256JWK builds a JWK for an ECDSA P-256 public key.
func NewES256JWK(kid, use, alg string, pub *ecdsa.PublicKey) JWK {
	// RFC 7518 requires fixed-width coordinates.
	x := pub.X.FillBytes(make([]byte, 32))
	y := pub.Y.FillBytes(make([]byte, 32))

	return JWK{
		Kty: "EC",
		Use: use,
		Alg: alg,
		Kid: kid,
		Crv: "P-256",
		X:   base64.RawURLEncoding.EncodeToString(x),
		Y:   base64.RawURLEncoding.EncodeToString(y),
	}
}
