package jwtx

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Supported JWT signing algorithms.
const (
	AlgorithmRS256 = "RS256"
	AlgorithmES256 = "ES256"
)

// Signer is our interface for anything that can sign JWTs.
type Signer interface {
	Alg() string
	KID() string
	Sign(jwt.Claims) (string, error)
	PublicJWK() JWK
	Validate() error
}

// keySigner signs with an RSA or ECDSA private key. The JWT method is fixed
// at construction so a key can never be used with the wrong algorithm.
type keySigner struct {
	kid    string
	method jwt.SigningMethod
	key    crypto.Signer
	jwk    JWK
}

// NewSigner loads a private key from PEM bytes and binds it to alg. RSA keys
// may be PKCS1 or PKCS8; EC keys may be SEC1 or PKCS8.
func NewSigner(alg, kid string, pemKey []byte) (Signer, error) {
	priv, err := parsePrivateKey(pemKey)
	if err != nil {
		return nil, err
	}

	switch alg {
	case AlgorithmRS256:
		rk, ok := priv.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("jwtx: RS256 requires an RSA private key")
		}
		return &keySigner{
			kid:    kid,
			method: jwt.SigningMethodRS256,
			key:    rk,
			jwk:    NewRSAJWK(kid, "sig", alg, &rk.PublicKey),
		}, nil

	case AlgorithmES256:
		ek, ok := priv.(*ecdsa.PrivateKey)
		if !ok || ek.Curve != elliptic.P256() {
			return nil, errors.New("jwtx: ES256 requires a P-256 private key")
		}
		return &keySigner{
			kid:    kid,
			method: jwt.SigningMethodES256,
			key:    ek,
			jwk:    NewES256JWK(kid, "sig", alg, &ek.PublicKey),
		}, nil

	default:
		return nil, fmt.Errorf("jwtx: unsupported algorithm %q", alg)
	}
}

func parsePrivateKey(pemKey []byte) (any, error) {
	block, _ := pem.Decode(pemKey)
	if block == nil {
		return nil, errors.New("jwtx: invalid PEM private key")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		priv, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("jwtx: parse PKCS8: %w", err)
		}
		return priv, nil
	default:
		return nil, fmt.Errorf("jwtx: unsupported PEM type %q", block.Type)
	}
}

func (s *keySigner) Alg() string { return s.method.Alg() }
func (s *keySigner) KID() string { return s.kid }

// Sign serializes claims into a compact JWS with the kid header set.
func (s *keySigner) Sign(claims jwt.Claims) (string, error) {
	t := jwt.NewWithClaims(s.method, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.key)
}

// PublicJWK returns the verification key for publishing in a JWKS.
func (s *keySigner) PublicJWK() JWK { return s.jwk }

func (s *keySigner) Validate() error {
	if s.key == nil {
		return errors.New("jwtx: nil private key")
	}
	if s.kid == "" {
		return errors.New("jwtx: empty kid")
	}
	return nil
}
